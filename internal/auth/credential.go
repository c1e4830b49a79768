package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

// credentialAudience marks a token as a collection credential so an identity
// token signed with the same secret is never accepted at pickup.
const credentialAudience = "saveserve:collection"

var (
	// ErrCredentialInvalid covers malformed tokens and bad signatures.
	ErrCredentialInvalid = errors.New("collection credential is invalid")
)

// CredentialClaims bind a QR payload to one booking on one listing.
type CredentialClaims struct {
	BookingID string `json:"bid"`
	ListingID string `json:"lid"`
	jwt.RegisteredClaims
}

// CredentialSigner mints and parses QR payloads.
type CredentialSigner struct {
	secret []byte
}

func NewCredentialSigner(secret string) *CredentialSigner {
	return &CredentialSigner{secret: []byte(secret)}
}

// Sign returns the QR payload and the nonce embedded in it.
func (s *CredentialSigner) Sign(bookingID, listingID utils.SixID, issuedAt, expiresAt time.Time) (payload, nonce string, err error) {
	nonce = uuid.NewString()
	claims := &CredentialClaims{
		BookingID: bookingID.String(),
		ListingID: listingID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Audience:  jwt.ClaimStrings{credentialAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	payload, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign collection credential: %w", err)
	}
	return payload, nonce, nil
}

// ParsedCredential is what a verified signature tells us.
type ParsedCredential struct {
	BookingID utils.SixID
	ListingID utils.SixID
	Nonce     string
	ExpiresAt time.Time
}

// Parse checks the signature and audience but not the expiry: the caller
// decides expiry against its own clock, after checking booking state.
func (s *CredentialSigner) Parse(payload string) (*ParsedCredential, error) {
	claims := &CredentialClaims{}
	_, err := jwt.ParseWithClaims(payload, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	audOK := false
	for _, aud := range claims.Audience {
		if aud == credentialAudience {
			audOK = true
		}
	}
	if !audOK || claims.ExpiresAt == nil || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrCredentialInvalid)
	}

	bookingID, err := utils.ParseSixID(claims.BookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking id: %v", ErrCredentialInvalid, err)
	}
	listingID, err := utils.ParseSixID(claims.ListingID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing id: %v", ErrCredentialInvalid, err)
	}
	return &ParsedCredential{
		BookingID: bookingID,
		ListingID: listingID,
		Nonce:     claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
