package devserver

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	session "github.com/goliatone/go-auth-session"
)

type loginPayload struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

type registerPayload struct {
	AccountType session.AccountType `json:"account_type"`
	session.Account
	Dealer *session.DealerProfile `json:"dealer,omitempty"`
}

func (p registerPayload) data() session.RegistrationData {
	if p.AccountType == session.AccountDealer {
		reg := &session.DealerRegistration{Account: p.Account}
		if p.Dealer != nil {
			reg.Dealer = *p.Dealer
		}
		return reg
	}
	return &session.IndividualRegistration{Account: p.Account}
}

type refreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordPayload struct {
	Email string `json:"email"`
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginPayload
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request", nil)
	}
	if err := req.Validate(); err != nil {
		return writeValidation(c, "Invalid login request", err)
	}

	user, err := s.authenticate(req.Email, req.Password)
	if err != nil {
		s.cfg.Logger.Info("login rejected", "email", req.Email)
		return writeError(c, fiber.StatusUnauthorized, errBadCredentials.Error(), nil)
	}

	return s.writeAuthResult(c, fiber.StatusOK, user)
}

func (s *Server) register(c *fiber.Ctx) error {
	var req registerPayload
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request", nil)
	}

	data := req.data()
	if err := data.Validate(); err != nil {
		return writeValidation(c, "Invalid registration data", err)
	}

	user, err := s.createAccount(data)
	if errors.Is(err, errEmailTaken) {
		return writeError(c, fiber.StatusConflict, err.Error(), map[string]string{"email": err.Error()})
	}
	if err != nil {
		return err
	}

	s.cfg.Logger.Info("account registered", "user_id", user.ID, "account_type", user.AccountType)
	return s.writeAuthResult(c, fiber.StatusCreated, user)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshPayload
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return writeError(c, fiber.StatusUnauthorized, "refresh token required", nil)
	}

	id, ok := s.tokens.rotate(req.RefreshToken)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, "refresh token invalid or expired", nil)
	}

	user, ok := s.lookupID(id)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, "unknown user", nil)
	}

	pair, err := s.tokens.issue(*user)
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	user, ok := s.lookupID(currentUserID(c))
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, "unknown user", nil)
	}
	return c.JSON(user)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var patch session.ProfilePatch
	if err := c.BodyParser(&patch); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request", nil)
	}
	if err := patch.Validate(); err != nil {
		return writeValidation(c, "Invalid profile update", err)
	}

	user, err := s.applyPatch(currentUserID(c), patch)
	if errors.Is(err, errEmailTaken) {
		return writeError(c, fiber.StatusUnprocessableEntity, "Invalid profile update", map[string]string{"email": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (s *Server) profileStatus(c *fiber.Ctx) error {
	user, ok := s.lookupID(currentUserID(c))
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, "unknown user", nil)
	}

	status := session.ProfileStatus{Completed: true}
	if user.AccountType == session.AccountDealer {
		status.MissingFields = missingDealerFields(user.Dealer)
		status.Completed = len(status.MissingFields) == 0
	}
	return c.JSON(status)
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	var req changePasswordPayload
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request", nil)
	}

	err := validation.ValidateStruct(&req,
		validation.Field(&req.CurrentPassword, validation.Required),
		validation.Field(&req.NewPassword, validation.Required, validation.Length(8, 128)),
	)
	if err != nil {
		return writeValidation(c, "Invalid password change", err)
	}

	if err := s.changePasswordFor(currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, errPasswordInvalid) {
			return writeError(c, fiber.StatusBadRequest, err.Error(), map[string]string{"current_password": err.Error()})
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// forgotPassword always succeeds so the endpoint cannot be used to probe
// for registered emails.
func (s *Server) forgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordPayload
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request", nil)
	}
	if err := validation.Validate(req.Email, validation.Required, is.Email); err != nil {
		return writeError(c, fiber.StatusUnprocessableEntity, "Invalid email", map[string]string{"email": err.Error()})
	}

	email := normalizeEmail(req.Email)
	s.mu.Lock()
	if _, ok := s.byEmail[email]; ok {
		s.resets = append(s.resets, email)
	}
	s.mu.Unlock()

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) logout(c *fiber.Ctx) error {
	var req refreshPayload
	_ = c.BodyParser(&req)
	if req.RefreshToken != "" {
		s.tokens.revoke(req.RefreshToken)
	} else {
		s.tokens.revokeUser(currentUserID(c))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) writeAuthResult(c *fiber.Ctx, status int, user *session.User) error {
	pair, err := s.tokens.issue(*user)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(session.AuthResult{User: user, Tokens: pair})
}

func writeValidation(c *fiber.Ctx, message string, err error) error {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		return writeError(c, fiber.StatusUnprocessableEntity, message, verr.Fields)
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		return writeError(c, fiber.StatusUnprocessableEntity, message, fields)
	}
	return writeError(c, fiber.StatusUnprocessableEntity, message, nil)
}
