package onboard_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
	"github.com/stretchr/testify/require"
)

// TestSetupFlow tests the complete tenant bootstrap flow:
// 1. Mint a setup token with the operator token
// 2. Validate the token without consuming it
// 3. Complete setup to create the tenant and its first admin
// 4. Sign in as the new admin
func TestSetupFlow(t *testing.T) {
	baseURL, cleanup := setupOnboardContainer(t)
	defer cleanup()

	client := onboardsdk.NewSDKClient(baseURL)

	// Step 1: Mint a setup token
	mintResp, err := client.CreateSetupToken(t.Context(), onboardsdk.CreateSetupTokenRequest{
		OperatorToken: operatorToken,
		Email:         adminEmail,
	})
	require.NoError(t, err)
	require.NotEmpty(t, mintResp.TokenID)
	require.NotEmpty(t, mintResp.SetupToken)
	require.Equal(t, adminEmail, mintResp.Email)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), mintResp.ExpiresAt, 5*time.Minute,
		"Default setup token TTL should be 24 hours")

	t.Logf("Setup token minted (ID: %s)", mintResp.TokenID)

	// Step 2: Validate without consuming
	validateResp, err := client.ValidateSetupToken(t.Context(), onboardsdk.ValidateTokenRequest{
		Token: mintResp.SetupToken,
	})
	require.NoError(t, err)
	require.True(t, validateResp.Valid, "Fresh setup token should validate")
	require.Equal(t, adminEmail, validateResp.Email)
	require.Equal(t, "ADMIN", validateResp.Role)

	// Step 3: Complete setup
	setupResp, err := client.CompleteSetup(t.Context(), onboardsdk.CompleteSetupRequest{
		Token:      mintResp.SetupToken,
		TenantName: tenantName,
		Subdomain:  tenantSubdomain,
		AdminName:  adminName,
		Password:   adminPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, setupResp.TenantID)
	require.Equal(t, tenantSubdomain, setupResp.Subdomain)
	require.NotEmpty(t, setupResp.AccountID)
	require.Equal(t, adminEmail, setupResp.Email)

	t.Logf("Tenant created (ID: %s)", setupResp.TenantID)

	// Step 4: Explicit sign-in works regardless of the auto session
	session := performSignIn(t, client, adminEmail, adminPassword)
	require.NotEmpty(t, session)

	t.Logf("Admin sign-in successful")
}

// TestSetupTokenSingleUse verifies a consumed setup token cannot be redeemed
// or validated again.
func TestSetupTokenSingleUse(t *testing.T) {
	baseURL, cleanup := setupOnboardContainer(t)
	defer cleanup()

	client := onboardsdk.NewSDKClient(baseURL)

	mintResp, err := client.CreateSetupToken(t.Context(), onboardsdk.CreateSetupTokenRequest{
		OperatorToken: operatorToken,
		Email:         adminEmail,
	})
	require.NoError(t, err)

	_, err = client.CompleteSetup(t.Context(), onboardsdk.CompleteSetupRequest{
		Token:      mintResp.SetupToken,
		TenantName: tenantName,
		Subdomain:  tenantSubdomain,
		AdminName:  adminName,
		Password:   adminPassword,
	})
	require.NoError(t, err)

	// Second redemption must fail
	_, err = client.CompleteSetup(t.Context(), onboardsdk.CompleteSetupRequest{
		Token:      mintResp.SetupToken,
		TenantName: "Second School",
		Subdomain:  "second",
		AdminName:  "Other Admin",
		Password:   adminPassword,
	})
	assertAPIError(t, err, http.StatusBadRequest, "Replaying a consumed setup token")

	// Validation now reports the token as invalid without explaining why
	validateResp, err := client.ValidateSetupToken(t.Context(), onboardsdk.ValidateTokenRequest{
		Token: mintResp.SetupToken,
	})
	require.NoError(t, err)
	require.False(t, validateResp.Valid, "Consumed token should not validate")
	require.Empty(t, validateResp.Email, "Invalid responses should not leak claims")
}

// TestSetupRejectsBadOperatorToken verifies minting is refused without the
// configured operator token.
func TestSetupRejectsBadOperatorToken(t *testing.T) {
	baseURL, cleanup := setupOnboardContainer(t)
	defer cleanup()

	client := onboardsdk.NewSDKClient(baseURL)

	_, err := client.CreateSetupToken(t.Context(), onboardsdk.CreateSetupTokenRequest{
		OperatorToken: "not-the-operator-token",
		Email:         adminEmail,
	})
	assertAPIError(t, err, http.StatusForbidden, "Minting with a wrong operator token")
}

// TestSetupRejectsTakenSubdomain verifies a second tenant cannot claim an
// existing subdomain.
func TestSetupRejectsTakenSubdomain(t *testing.T) {
	baseURL, cleanup := setupOnboardContainer(t)
	defer cleanup()

	client := onboardsdk.NewSDKClient(baseURL)
	bootstrapTenant(t, client)

	mintResp, err := client.CreateSetupToken(t.Context(), onboardsdk.CreateSetupTokenRequest{
		OperatorToken: operatorToken,
		Email:         "head@other.edu",
	})
	require.NoError(t, err)

	_, err = client.CompleteSetup(t.Context(), onboardsdk.CompleteSetupRequest{
		Token:      mintResp.SetupToken,
		TenantName: "Other School",
		Subdomain:  tenantSubdomain, // already taken
		AdminName:  "Other Admin",
		Password:   adminPassword,
	})
	assertAPIError(t, err, http.StatusConflict, "Claiming a taken subdomain")
}
