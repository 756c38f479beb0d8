package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const resolutionMessage = "We could not set up your customer profile. Please try again."

type repository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Customer, error)
	FindByGuestSession(ctx context.Context, sessionID string) (*models.Customer, error)
	Create(ctx context.Context, customer *models.Customer) error
	UpdateContact(ctx context.Context, customer *models.Customer) error
}

// Profile is the contact captured from the checkout form.
type Profile struct {
	Name  string
	Email string
	Phone string
}

type Service struct {
	repo repository
}

func NewService(repo repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	return &Service{repo: repo}, nil
}

// GetOrCreateForUser resolves the customer of a signed-in user.
func (s *Service) GetOrCreateForUser(ctx context.Context, userID string, profile Profile) (*models.Customer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCustomerResolution, "user id is required")
	}
	return s.getOrCreate(ctx, profile,
		func() (*models.Customer, error) { return s.repo.FindByUserID(ctx, userID) },
		func(c *models.Customer) { c.UserID = &userID },
	)
}

// GetOrCreateGuest resolves the customer of a guest checkout session.
func (s *Service) GetOrCreateGuest(ctx context.Context, sessionID string, profile Profile) (*models.Customer, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCustomerResolution, "guest session is required")
	}
	return s.getOrCreate(ctx, profile,
		func() (*models.Customer, error) { return s.repo.FindByGuestSession(ctx, sessionID) },
		func(c *models.Customer) { c.GuestSessionID = &sessionID },
	)
}

// Resolve picks the user or guest path for the shopper.
func (s *Service) Resolve(ctx context.Context, shopper auth.Shopper, profile Profile) (*models.Customer, error) {
	if !shopper.IsGuest() {
		return s.GetOrCreateForUser(ctx, shopper.UserID, profile)
	}
	return s.GetOrCreateGuest(ctx, shopper.GuestSessionID, profile)
}

// ForShopper looks up the shopper's customer without creating one. A shopper
// who never placed an order is NotFound.
func (s *Service) ForShopper(ctx context.Context, shopper auth.Shopper) (*models.Customer, error) {
	var (
		customer *models.Customer
		err      error
	)
	switch {
	case !shopper.IsGuest():
		customer, err = s.repo.FindByUserID(ctx, strings.TrimSpace(shopper.UserID))
	case strings.TrimSpace(shopper.GuestSessionID) != "":
		customer, err = s.repo.FindByGuestSession(ctx, strings.TrimSpace(shopper.GuestSessionID))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper identity required")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return customer, nil
}

func (s *Service) getOrCreate(ctx context.Context, profile Profile, find func() (*models.Customer, error), key func(*models.Customer)) (*models.Customer, error) {
	existing, err := find()
	if err != nil {
		return nil, resolutionError(err)
	}
	if existing != nil {
		return s.refresh(ctx, existing, profile)
	}

	customer := &models.Customer{Name: strings.TrimSpace(profile.Name), Phone: strings.TrimSpace(profile.Phone)}
	if email := strings.TrimSpace(profile.Email); email != "" {
		customer.Email = &email
	}
	key(customer)

	if err := s.repo.Create(ctx, customer); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, resolutionError(err)
		}
		// lost the race to a concurrent checkout for the same shopper
		existing, findErr := find()
		if findErr != nil || existing == nil {
			return nil, resolutionError(err)
		}
		return existing, nil
	}
	return customer, nil
}

func (s *Service) refresh(ctx context.Context, customer *models.Customer, profile Profile) (*models.Customer, error) {
	changed := false
	if name := strings.TrimSpace(profile.Name); name != "" && name != customer.Name {
		customer.Name, changed = name, true
	}
	if phone := strings.TrimSpace(profile.Phone); phone != "" && phone != customer.Phone {
		customer.Phone, changed = phone, true
	}
	if email := strings.TrimSpace(profile.Email); email != "" && (customer.Email == nil || *customer.Email != email) {
		customer.Email, changed = &email, true
	}
	if !changed {
		return customer, nil
	}
	if err := s.repo.UpdateContact(ctx, customer); err != nil {
		return nil, resolutionError(err)
	}
	return customer, nil
}

func resolutionError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeCustomerResolution, err, resolutionMessage)
}
