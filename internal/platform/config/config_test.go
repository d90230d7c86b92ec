package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"STRIPE_API_KEY": "sk_test_123",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.TaxBasisPoints != 825 {
		t.Fatalf("expected default tax basis points 825, got %d", cfg.Checkout.TaxBasisPoints)
	}
	if cfg.Shipping.RateCeilingCents != 2500 {
		t.Fatalf("expected default rate ceiling 2500, got %d", cfg.Shipping.RateCeilingCents)
	}
	if cfg.Sweep.UnpaidTTL != 10*time.Minute {
		t.Fatalf("expected default unpaid ttl 10m, got %s", cfg.Sweep.UnpaidTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"LM_PORT":                "9090",
		"LM_TAX_BASIS_POINTS":    "700",
		"LM_SWEEP_UNPAID_TTL":    "30m",
		"LM_FIRESTORE_PROJECT_ID": "demo-project",
		"STRIPE_API_KEY":         "sk_test_123",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.TaxBasisPoints != 700 {
		t.Fatalf("expected tax basis points 700, got %d", cfg.Checkout.TaxBasisPoints)
	}
	if cfg.Sweep.UnpaidTTL != 30*time.Minute {
		t.Fatalf("expected unpaid ttl 30m, got %s", cfg.Sweep.UnpaidTTL)
	}
	if cfg.Firestore.ProjectID != "demo-project" {
		t.Fatalf("expected firestore project demo-project, got %q", cfg.Firestore.ProjectID)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://stripe-api-key" {
			return "", errors.New("unexpected reference")
		}
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STRIPE_API_KEY": "secret://stripe-api-key"}),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Stripe.APIKey != "sk_live_resolved" {
		t.Fatalf("expected resolved secret, got %q", cfg.Stripe.APIKey)
	}
}

func TestLoadRejectsUnresolvedSecretReference(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"STRIPE_API_KEY": "secret://stripe-api-key",
	}))
	if err == nil {
		t.Fatal("expected validation error for unresolved secret reference")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRejectsNonPositiveCeiling(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"STRIPE_API_KEY":                 "sk_test_123",
		"LM_SHIPPING_RATE_CEILING_CENTS": "-1",
	}))
	if err == nil {
		t.Fatal("expected validation error for negative ceiling")
	}
}
