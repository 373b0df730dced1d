package channels

import "testing"

func TestWebhookRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !rl.Allow("key1") {
			t.Fatalf("request %d unexpectedly denied", i)
		}
	}
	if rl.Allow("key1") {
		t.Fatal("expected request over the limit to be denied")
	}
}

func TestWebhookRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		rl.Allow("a")
	}
	if !rl.Allow("b") {
		t.Fatal("expected a different key to have its own budget")
	}
}
