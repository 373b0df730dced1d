package pii

import (
	"bytes"
	"testing"
)

func TestScanEmail(t *testing.T) {
	in := []byte("contact me at jane.doe+work@example.co for details")
	matches := Scan(in)
	found := false
	for _, m := range matches {
		if m.Category == Email {
			got := string(in[m.Offset : m.Offset+m.Length])
			if got != "jane.doe+work@example.co" {
				t.Fatalf("got %q", got)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an email match, got %+v", matches)
	}
}

func TestScanPhone(t *testing.T) {
	in := []byte("call +1 (555) 123-4567 now")
	matches := Scan(in)
	found := false
	for _, m := range matches {
		if m.Category == Phone {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a phone match, got %+v", matches)
	}
}

func TestScanSSN(t *testing.T) {
	in := []byte("SSN: 123-45-6789 on file")
	matches := Scan(in)
	found := false
	for _, m := range matches {
		if m.Category == SSN {
			got := string(in[m.Offset : m.Offset+m.Length])
			if got != "123-45-6789" {
				t.Fatalf("got %q", got)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an SSN match, got %+v", matches)
	}
}

func TestScanSSNRejectsInvalidArea(t *testing.T) {
	for _, in := range [][]byte{
		[]byte("000-45-6789"),
		[]byte("666-45-6789"),
		[]byte("901-45-6789"),
	} {
		for _, m := range Scan(in) {
			if m.Category == SSN {
				t.Fatalf("expected %q to be rejected as SSN", in)
			}
		}
	}
}

func TestScanCreditCard(t *testing.T) {
	// 4111 1111 1111 1111 is a well-known Luhn-valid test number.
	in := []byte("card 4111 1111 1111 1111 expires")
	matches := Scan(in)
	found := false
	for _, m := range matches {
		if m.Category == CreditCard {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a credit card match, got %+v", matches)
	}
}

func TestScanCreditCardRejectsLuhnInvalid(t *testing.T) {
	in := []byte("card 4111 1111 1111 1112 expires")
	for _, m := range Scan(in) {
		if m.Category == CreditCard {
			t.Fatalf("expected Luhn-invalid number not to match")
		}
	}
}

func TestScanIPv4(t *testing.T) {
	in := []byte("connect to 192.168.1.100 please")
	matches := Scan(in)
	found := false
	for _, m := range matches {
		if m.Category == IPv4 {
			got := string(in[m.Offset : m.Offset+m.Length])
			if got != "192.168.1.100" {
				t.Fatalf("got %q", got)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an IPv4 match, got %+v", matches)
	}
}

func TestScanIPv4RejectsOutOfRange(t *testing.T) {
	in := []byte("not an ip: 999.168.1.100")
	for _, m := range Scan(in) {
		if m.Category == IPv4 {
			t.Fatalf("expected out-of-range octet not to match")
		}
	}
}

func TestRedactRoundTrip(t *testing.T) {
	in := []byte("Email jane@example.com or call 555-123-4567, IP 10.0.0.1")
	redacted := Redact(in)

	if bytes.Contains(redacted, []byte("jane@example.com")) {
		t.Fatalf("redacted output still contains the email: %q", redacted)
	}
	if bytes.Contains(redacted, []byte("10.0.0.1")) {
		t.Fatalf("redacted output still contains the IPv4: %q", redacted)
	}
	if matches := Scan(redacted); len(matches) != 0 {
		t.Fatalf("expected zero matches scanning redacted output, got %+v", matches)
	}
}

func TestMatchOffsetsReclassify(t *testing.T) {
	in := []byte("reach jane@example.com at your leisure")
	for _, m := range Scan(in) {
		sub := in[m.Offset : m.Offset+m.Length]
		reclassified := Scan(sub)
		if len(reclassified) == 0 || reclassified[0].Category != m.Category {
			t.Fatalf("match %+v did not reclassify to same category in isolation, sub=%q", m, sub)
		}
	}
}
