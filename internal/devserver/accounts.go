package devserver

import (
	"errors"
	"strconv"
	"strings"

	session "github.com/goliatone/go-auth-session"
	"golang.org/x/crypto/bcrypt"
)

var (
	errEmailTaken      = errors.New("email already registered")
	errBadCredentials  = errors.New("invalid credentials")
	errPasswordInvalid = errors.New("current password is incorrect")
)

type account struct {
	user session.User
	hash string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SeedUser creates an account directly, skipping validation.
func (s *Server) SeedUser(acc session.Account, role session.Role) (*session.User, error) {
	var data session.RegistrationData = &session.IndividualRegistration{Account: acc}
	if role == session.RoleDealer {
		data = &session.DealerRegistration{Account: acc}
	}
	u, err := s.createAccount(data)
	if err != nil {
		return nil, err
	}
	if role != "" && u.Role != role {
		s.mu.Lock()
		s.byID[u.ID].user.Role = role
		u.Role = role
		s.mu.Unlock()
	}
	return u, nil
}

func (s *Server) createAccount(data session.RegistrationData) (*session.User, error) {
	acc := data.AccountFields()
	hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(acc.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, errEmailTaken
	}

	s.nextID++
	user := session.User{
		ID:               session.UserID(strconv.Itoa(s.nextID)),
		Username:         acc.Username,
		Email:            email,
		FirstName:        acc.FirstName,
		LastName:         acc.LastName,
		Phone:            acc.Phone,
		Age:              acc.Age,
		Gender:           acc.Gender,
		Role:             session.RoleUser,
		AccountType:      data.Variant(),
		ProfileCompleted: true,
	}

	if dealer, ok := data.(*session.DealerRegistration); ok {
		profile := dealer.Dealer
		user.Role = session.RoleDealer
		user.Dealer = &profile
		user.ProfileCompleted = len(missingDealerFields(&profile)) == 0
	}

	a := &account{user: user, hash: string(hash)}
	s.byEmail[email] = a
	s.byID[user.ID] = a

	out := a.user.Clone()
	return out, nil
}

func (s *Server) authenticate(email, password string) (*session.User, error) {
	s.mu.Lock()
	a, ok := s.byEmail[normalizeEmail(email)]
	s.mu.Unlock()
	if !ok {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.hash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	return a.user.Clone(), nil
}

func (s *Server) lookupID(id session.UserID) (*session.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return a.user.Clone(), true
}

func (s *Server) applyPatch(id session.UserID, p session.ProfilePatch) (*session.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, errBadCredentials
	}

	u := &a.user
	if p.Email != nil {
		email := normalizeEmail(*p.Email)
		if other, taken := s.byEmail[email]; taken && other != a {
			return nil, errEmailTaken
		}
		delete(s.byEmail, u.Email)
		u.Email = email
		s.byEmail[email] = a
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	return u.Clone(), nil
}

func (s *Server) changePasswordFor(id session.UserID, current, next string) error {
	s.mu.Lock()
	a, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return errBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.hash), []byte(current)); err != nil {
		return errPasswordInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	a.hash = string(hash)
	s.mu.Unlock()
	return nil
}

// ResetRequests lists the emails a reset link was requested for.
func (s *Server) ResetRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resets...)
}

func missingDealerFields(d *session.DealerProfile) []string {
	var missing []string
	if d == nil {
		return []string{"dealer"}
	}
	hasLicense := false
	for _, img := range d.Images {
		if img.Kind == session.ImageLicense {
			hasLicense = true
		}
	}
	if !hasLicense {
		missing = append(missing, "dealer.images.license")
	}
	if d.Phone == "" {
		missing = append(missing, "dealer.phone")
	}
	return missing
}
