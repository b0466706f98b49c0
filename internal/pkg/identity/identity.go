package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

// Session keys written by the login flow.
const (
	KeyUserID         = "user_id"
	KeyOrganizationID = "organization_id"
)

var (
	// ErrCapabilityUnavailable is returned when the identity provider does not
	// offer the requested operation.
	ErrCapabilityUnavailable = errors.New("identity capability unavailable")
	ErrInvalidOrganization   = errors.New("invalid organization id")
)

// Membership is one organization a user belongs to.
type Membership struct {
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Client is the identity provider as seen by this service. Providers differ in
// what they support, so every capability is optional; a nil field makes the
// matching method fail with ErrCapabilityUnavailable.
type Client struct {
	CurrentUser        func(c *fiber.Ctx) (string, error)
	ActiveOrganization func(c *fiber.Ctx, userID string) (string, error)
	ListOrganizations  func(ctx context.Context, userID string) ([]Membership, error)
}

// User returns the id of the signed-in user, or "" for anonymous requests.
func (cl *Client) User(c *fiber.Ctx) (string, error) {
	if cl == nil || cl.CurrentUser == nil {
		return "", fmt.Errorf("%w: current user", ErrCapabilityUnavailable)
	}
	return cl.CurrentUser(c)
}

// Organization returns the active organization of userID, or "" if none is selected.
func (cl *Client) Organization(c *fiber.Ctx, userID string) (string, error) {
	if cl == nil || cl.ActiveOrganization == nil {
		return "", fmt.Errorf("%w: active organization", ErrCapabilityUnavailable)
	}
	return cl.ActiveOrganization(c, userID)
}

// Organizations lists the memberships of userID.
func (cl *Client) Organizations(ctx context.Context, userID string) ([]Membership, error) {
	if cl == nil || cl.ListOrganizations == nil {
		return nil, fmt.Errorf("%w: list organizations", ErrCapabilityUnavailable)
	}
	return cl.ListOrganizations(ctx, userID)
}

// IsMember reports whether userID belongs to organizationID.
func (cl *Client) IsMember(ctx context.Context, userID, organizationID string) (bool, error) {
	memberships, err := cl.Organizations(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if strings.EqualFold(m.OrganizationID, organizationID) {
			return true, nil
		}
	}
	return false, nil
}

// NormalizeOrganizationID validates an organization id and returns its
// canonical lower-case form.
func NormalizeOrganizationID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrganization, err)
	}
	return id.String(), nil
}

// NewSessionClient reads the user and the active organization from the
// session written at login. Memberships live with the external provider, so
// ListOrganizations stays unset.
func NewSessionClient(store *session.Store) *Client {
	return &Client{
		CurrentUser: func(c *fiber.Ctx) (string, error) {
			return sessionString(store, c, KeyUserID)
		},
		ActiveOrganization: func(c *fiber.Ctx, _ string) (string, error) {
			raw, err := sessionString(store, c, KeyOrganizationID)
			if err != nil || raw == "" {
				return "", err
			}
			return NormalizeOrganizationID(raw)
		},
	}
}

func sessionString(store *session.Store, c *fiber.Ctx, key string) (string, error) {
	if store == nil {
		return "", errors.New("session store not initialized")
	}
	sess, err := store.Get(c)
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	switch v := sess.Get(key).(type) {
	case string:
		return strings.TrimSpace(v), nil
	case nil:
		return "", nil
	default:
		return strings.TrimSpace(fmt.Sprint(v)), nil
	}
}
