package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

const secret = "test-secret"

func TestIdentityTokenRoundTrip(t *testing.T) {
	id := models.Identity{UserID: "user-42", Role: models.RoleRecipient, Subrole: models.SubroleNGO}
	token, err := GenerateJWT(id, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
}

func TestIdentityTokenRejections(t *testing.T) {
	id := models.Identity{UserID: "user-42", Role: models.RoleProvider}

	expired, err := GenerateJWT(id, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, secret)
	assert.Error(t, err)

	good, err := GenerateJWT(id, secret, time.Hour)
	require.NoError(t, err)
	_, err = ValidateJWT(good, "other-secret")
	assert.Error(t, err)

	badRole, err := GenerateJWT(models.Identity{UserID: "x", Role: "chef"}, secret, time.Hour)
	require.NoError(t, err)
	_, err = ValidateJWT(badRole, secret)
	assert.Error(t, err)
}

func TestCredentialSignAndParse(t *testing.T) {
	signer := NewCredentialSigner(secret)
	bookingID, listingID := utils.NewSixID(), utils.NewSixID()
	issued := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	expires := issued.Add(time.Hour)

	payload, nonce, err := signer.Sign(bookingID, listingID, issued, expires)
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)
	assert.Equal(t, 2, strings.Count(payload, "."))

	// Expired by wall clock, but Parse leaves expiry to the caller.
	parsed, err := signer.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, bookingID, parsed.BookingID)
	assert.Equal(t, listingID, parsed.ListingID)
	assert.Equal(t, nonce, parsed.Nonce)
	assert.True(t, parsed.ExpiresAt.Equal(expires))
}

func TestCredentialParseRejectsTampering(t *testing.T) {
	signer := NewCredentialSigner(secret)
	payload, _, err := signer.Sign(utils.NewSixID(), utils.NewSixID(), time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = NewCredentialSigner("other").Parse(payload)
	assert.ErrorIs(t, err, ErrCredentialInvalid)

	_, err = signer.Parse(payload[:len(payload)-2] + "xx")
	assert.ErrorIs(t, err, ErrCredentialInvalid)

	_, err = signer.Parse("ABCD2345")
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestCredentialParseRejectsIdentityToken(t *testing.T) {
	token, err := GenerateJWT(models.Identity{UserID: "u", Role: models.RoleRecipient}, secret, time.Hour)
	require.NoError(t, err)
	_, err = NewCredentialSigner(secret).Parse(token)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestIdentityValidationRejectsCredential(t *testing.T) {
	payload, _, err := NewCredentialSigner(secret).Sign(utils.NewSixID(), utils.NewSixID(), time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = ValidateJWT(payload, secret)
	assert.Error(t, err)
}

func TestCredentialParseRejectsOtherAlgorithms(t *testing.T) {
	claims := &CredentialClaims{
		BookingID: utils.NewSixID().String(),
		ListingID: utils.NewSixID().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "n",
			Audience:  jwt.ClaimStrings{credentialAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewCredentialSigner(secret).Parse(unsigned)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}
