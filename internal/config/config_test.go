package config

import (
	"strings"
	"testing"
	"time"

	"github.com/congo-pay/mbongo/internal/account"
)

// clearEnv blanks every variable Load reads so ambient shell state cannot
// leak into assertions. t.Setenv restores the originals after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL",
		"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "TOKEN_TTL",
		"TOKEN_NAME", "TOKEN_SYMBOL", "TOKEN_DECIMALS",
		"MINTING_ACCOUNT", "TRANSFER_FEE", "MIN_BURN_AMOUNT", "MAX_SUPPLY",
		"TRANSACTION_WINDOW", "PERMITTED_DRIFT", "LOG_CAPACITY", "INITIAL_BALANCES",
		"ARCHIVE_PROVISION_BUDGET", "ARCHIVE_CALL_TIMEOUT",
		"BREAKER_THRESHOLD", "BREAKER_COOLDOWN",
		"WRITE_RATE_PER_MIN",
		"SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT",
		"IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresMintingAccount(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when MINTING_ACCOUNT is unset")
	}

	t.Setenv("MINTING_ACCOUNT", "NOT-AN-ACCOUNT")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed MINTING_ACCOUNT")
	}
}

func TestLoadDevDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINTING_ACCOUNT", "mint-authority")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.IsDev() {
		t.Fatalf("expected development mode, got %q", cfg.AppEnv)
	}
	if cfg.Port != "8080" || cfg.Address() != ":8080" {
		t.Fatalf("unexpected port %q address %q", cfg.Port, cfg.Address())
	}
	if cfg.MintingAccount.Owner != "mint-authority" {
		t.Fatalf("unexpected minting account %+v", cfg.MintingAccount)
	}
	if cfg.LogCapacity != 2000 {
		t.Fatalf("expected default log capacity 2000, got %d", cfg.LogCapacity)
	}
	if cfg.TransactionWindow != 24*time.Hour || cfg.PermittedDrift != 2*time.Minute {
		t.Fatalf("unexpected window %v drift %v", cfg.TransactionWindow, cfg.PermittedDrift)
	}
	if cfg.ArchiveCallTimeout != 10*time.Second {
		t.Fatalf("unexpected archive timeout %v", cfg.ArchiveCallTimeout)
	}
	if cfg.BreakerThreshold != 5 || cfg.BreakerCooldown != 30*time.Second {
		t.Fatalf("unexpected breaker settings %d %v", cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	if cfg.TokenSymbol != "MBO" || cfg.TokenDecimals != 8 {
		t.Fatalf("unexpected token %q/%d", cfg.TokenSymbol, cfg.TokenDecimals)
	}
	if cfg.JWTSecret != "dev-secret" {
		t.Fatalf("expected dev JWT fallback, got %q", cfg.JWTSecret)
	}
	if cfg.InitialBalances != nil {
		t.Fatalf("expected no initial balances, got %v", cfg.InitialBalances)
	}
}

func TestLoadParsesInitialBalances(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINTING_ACCOUNT", "mint-authority")

	var sub account.Subaccount
	sub[account.SubaccountSize-1] = 0x07
	treasury, err := account.New("treasury", sub)
	if err != nil {
		t.Fatalf("build account: %v", err)
	}

	t.Setenv("INITIAL_BALANCES", "alice=1000, bob=50,"+treasury.String()+"=250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.InitialBalances) != 3 {
		t.Fatalf("expected 3 balances, got %d", len(cfg.InitialBalances))
	}

	alice, _ := account.FromOwner("alice")
	bob, _ := account.FromOwner("bob")
	want := []Balance{
		{Account: alice, Amount: 1000},
		{Account: bob, Amount: 50},
		{Account: treasury, Amount: 250},
	}
	for i, b := range want {
		if cfg.InitialBalances[i] != b {
			t.Fatalf("balance %d: expected %+v got %+v", i, b, cfg.InitialBalances[i])
		}
	}
}

func TestLoadRejectsMalformedBalances(t *testing.T) {
	cases := []string{
		"alice",
		"alice=",
		"=100",
		"alice=ten",
		"ALICE=1",
		"alice=1000,bob",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MINTING_ACCOUNT", "mint-authority")
			t.Setenv("INITIAL_BALANCES", raw)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %q", raw)
			}
		})
	}
}

func TestLoadProductionRequiresBackingServices(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINTING_ACCOUNT", "mint-authority")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/mbongo")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}

	t.Setenv("JWT_SECRET", "prod-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsDev() {
		t.Fatal("expected production mode")
	}
	if cfg.JWTSecret != "prod-secret" {
		t.Fatalf("unexpected secret %q", cfg.JWTSecret)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"TOKEN_DECIMALS", "300"},
		{"TRANSFER_FEE", "-1"},
		{"MAX_SUPPLY", "plenty"},
		{"MAX_SUPPLY", "0"},
		{"LOG_CAPACITY", "many"},
		{"TRANSACTION_WINDOW", "fortnight"},
		{"BREAKER_COOLDOWN", "soon"},
		{"SHUTDOWN_TIMEOUT_SECONDS", "5s"},
		{"IDEMPOTENCY_TTL", "oneday"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MINTING_ACCOUNT", "mint-authority")
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINTING_ACCOUNT", "mint-authority")
	t.Setenv("TRANSFER_FEE", "10")
	t.Setenv("MIN_BURN_AMOUNT", "100")
	t.Setenv("MAX_SUPPLY", "5000")
	t.Setenv("LOG_CAPACITY", "16")
	t.Setenv("TRANSACTION_WINDOW", "1h")
	t.Setenv("ARCHIVE_PROVISION_BUDGET", "1960")
	t.Setenv("IDEMPOTENCY_TTL", "90s")
	// The seconds form wins over the duration form.
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TransferFee != 10 || cfg.MinBurnAmount != 100 || cfg.MaxSupply != 5000 {
		t.Fatalf("unexpected token policy %+v", cfg)
	}
	if cfg.LogCapacity != 16 || cfg.TransactionWindow != time.Hour {
		t.Fatalf("unexpected log settings %d %v", cfg.LogCapacity, cfg.TransactionWindow)
	}
	if cfg.ArchiveProvisionBudget != 1960 {
		t.Fatalf("unexpected archive budget %d", cfg.ArchiveProvisionBudget)
	}
	if cfg.IdempotencyTTL != 90*time.Second {
		t.Fatalf("unexpected idempotency ttl %v", cfg.IdempotencyTTL)
	}
	if cfg.ShutdownPeriod != 5*time.Second {
		t.Fatalf("unexpected shutdown period %v", cfg.ShutdownPeriod)
	}
}

func TestAddressNormalizesPort(t *testing.T) {
	if (Config{Port: "9090"}).Address() != ":9090" {
		t.Fatal("expected bare port to gain a colon")
	}
	if (Config{Port: ":9090"}).Address() != ":9090" {
		t.Fatal("expected prefixed port to pass through")
	}
}
