package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// UserStore is the persistence the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, nu models.NewUser) (*models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByCodeName(ctx context.Context, codeName string) (*models.User, error)
}

// ProfileReader serves public profiles, usually through the Redis cache.
type ProfileReader interface {
	GetPublicUser(ctx context.Context, userID uuid.UUID) (*models.PublicUser, error)
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=30,letters_spaces"`
	CodeName string `json:"code_name" validate:"max=30,code_name"`
}

// LoginInput identifies the user by code name or by email.
type LoginInput struct {
	CodeName string `json:"code_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var (
	lettersSpaces = regexp.MustCompile(`^[a-zA-Z ]*$`)
	alphanumeric  = regexp.MustCompile(`^[a-zA-Z0-9]*$`)
)

// validationMessages maps validator tags to client messages.
var validationMessages = map[string]string{
	"required":       "This field may not be blank.",
	"email":          "Enter a valid email address.",
	"max":            "Ensure this field has no more than %s characters.",
	"letters_spaces": "Name must contain only letters and spaces.",
	"code_name":      "Code name must contain only letters and numbers.",
}

// UserService registers, authenticates and describes users.
type UserService struct {
	store     UserStore
	profiles  ProfileReader
	passwords *PasswordPolicy
	validate  *validator.Validate
	dummyHash string
}

// NewUserService wires the user service. profiles may be nil, in which case
// profiles are read straight from the store.
//
// Example:
//
//	userSvc, err := services.NewUserService(postgresDB, userCache,
//	    services.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.BcryptCost))
func NewUserService(store UserStore, profiles ProfileReader, passwords *PasswordPolicy) (*UserService, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f.Tag.Get("json"))
	})
	if err := v.RegisterValidation("letters_spaces", func(fl validator.FieldLevel) bool {
		return lettersSpaces.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("failed to register validator: %w", err)
	}
	if err := v.RegisterValidation("code_name", func(fl validator.FieldLevel) bool {
		return alphanumeric.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("failed to register validator: %w", err)
	}

	// Unknown identifiers are compared against this hash so that both
	// failure paths cost one bcrypt comparison.
	dummyHash, err := passwords.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &UserService{
		store:     store,
		profiles:  profiles,
		passwords: passwords,
		validate:  v,
		dummyHash: dummyHash,
	}, nil
}

// Register validates the input and creates an active, non-staff user. The
// returned validation error lists every failing field, not just the first.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.CodeName = strings.TrimSpace(in.CodeName)

	details := s.validateStruct(in)

	if in.Password != "" {
		// Attributes that failed their own validation are not compared.
		var attrs []UserAttribute
		for _, a := range []struct {
			field string
			attr  UserAttribute
		}{
			{"email", UserAttribute{Label: "email address", Value: emailLocalPart(in.Email)}},
			{"name", UserAttribute{Label: "name", Value: in.Name}},
			{"code_name", UserAttribute{Label: "code name", Value: in.CodeName}},
		} {
			if _, failed := details[a.field]; !failed {
				attrs = append(attrs, a.attr)
			}
		}
		for _, msg := range s.passwords.Validate(in.Password, attrs...) {
			details.Add("password", msg)
		}
	}

	if _, failed := details["email"]; !failed {
		if err := s.checkFree(ctx, s.store.GetUserByEmail, in.Email); err != nil {
			if !errors.Is(err, errTaken) {
				return nil, err
			}
			details.Add("email", database.MsgEmailTaken)
		}
	}
	if _, failed := details["code_name"]; !failed && in.CodeName != "" {
		if err := s.checkFree(ctx, s.store.GetUserByCodeName, in.CodeName); err != nil {
			if !errors.Is(err, errTaken) {
				return nil, err
			}
			details.Add("code_name", database.MsgCodeNameTaken)
		}
	}

	if !details.Empty() {
		return nil, utils.NewValidationError("", details)
	}

	return s.create(ctx, in, false)
}

// CreateSuperuser creates a staff superuser. Used by the seed command; the
// password policy is not applied.
func (s *UserService) CreateSuperuser(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.createUnchecked(ctx, in, true)
}

// CreateUser creates an ordinary user with field validation but without the
// password policy. Used by the seed command for fixture accounts.
func (s *UserService) CreateUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.createUnchecked(ctx, in, false)
}

func (s *UserService) createUnchecked(ctx context.Context, in RegisterInput, superuser bool) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	if details := s.validateStruct(in); !details.Empty() {
		return nil, utils.NewValidationError("", details)
	}
	return s.create(ctx, in, superuser)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, superuser bool) (*models.User, error) {
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// A concurrent registration can still win the race between the checks
	// above and this insert; the unique constraints report it as the same
	// field error.
	user, err := s.store.CreateUser(ctx, models.NewUser{
		Email:        in.Email,
		Name:         in.Name,
		CodeName:     in.CodeName,
		PasswordHash: hash,
		IsStaff:      superuser,
		IsSuperuser:  superuser,
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate checks credentials. Unknown users, wrong passwords and
// inactive accounts all produce utils.ErrAuthenticationFailed.
func (s *UserService) Authenticate(ctx context.Context, in LoginInput) (*models.User, error) {
	var user *models.User
	var err error

	switch {
	case in.CodeName != "":
		user, err = s.store.GetUserByCodeName(ctx, in.CodeName)
	case in.Email != "":
		user, err = s.store.GetUserByEmail(ctx, NormalizeEmail(in.Email))
	default:
		err = utils.ErrNotFound
	}

	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
		s.passwords.Compare(s.dummyHash, in.Password)
		return nil, utils.ErrAuthenticationFailed
	}

	if !s.passwords.Compare(user.PasswordHash, in.Password) || !user.IsActive {
		log.Info().
			Str("user_id", user.ID.String()).
			Msg("Authentication failed")
		return nil, utils.ErrAuthenticationFailed
	}

	return user, nil
}

// Current returns the public profile of userID.
func (s *UserService) Current(ctx context.Context, userID uuid.UUID) (*models.PublicUser, error) {
	if s.profiles != nil {
		return s.profiles.GetPublicUser(ctx, userID)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	public := user.Public()
	return &public, nil
}

var errTaken = errors.New("value taken")

func (s *UserService) checkFree(ctx context.Context, lookup func(context.Context, string) (*models.User, error), value string) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return errTaken
	case errors.Is(err, utils.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *UserService) validateStruct(in RegisterInput) utils.FieldErrors {
	details := utils.FieldErrors{}

	err := s.validate.Struct(in)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return details
	}

	for _, fe := range verrs {
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			msg = "Invalid value."
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fe.Param())
		}
		details.Add(fe.Field(), msg)
	}
	return details
}

// NormalizeEmail trims the address and lower-cases its domain part. The
// local part is case-sensitive and left alone.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func emailLocalPart(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
