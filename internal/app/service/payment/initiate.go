package payment

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

const currencyKES = "KES"

type InitiateRequest struct {
	UserID   string
	Email    string
	Phone    string
	Amount   int64
	Type     types.PaymentType
	Metadata *models.PaymentMetadata
}

type InitiateResult struct {
	PaymentID         string              `json:"payment_id"`
	CheckoutRequestID string              `json:"checkout_request_id"`
	MerchantRequestID string              `json:"merchant_request_id"`
	Status            types.PaymentStatus `json:"status"`
	Amount            int64               `json:"amount"`
	CustomerMessage   string              `json:"customer_message"`
}

// Initiate records a pending attempt and sends the push. When the provider
// refuses or is unreachable the attempt stays pending and the caller gets an
// unavailable error together with a result naming that attempt, so it can be
// retried.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if !req.Type.Valid() {
		return nil, apperr.InvalidErr("unknown payment type", map[string]string{"payment_type": string(req.Type)})
	}
	if req.Amount <= 0 {
		return nil, apperr.InvalidErr("amount must be positive", map[string]string{"amount": "must be greater than zero"})
	}
	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return nil, invalidPhone()
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	meta := req.Metadata
	if meta == nil {
		meta = &models.PaymentMetadata{}
	}

	var p *models.Payment
	if req.Type == types.PaymentTypeRegistration && email != "" {
		p, err = s.reusableRegistration(ctx, email, phone, req.Amount, meta)
		if err != nil {
			return nil, apperr.Wrap(err)
		}
	}
	if p == nil {
		p = &models.Payment{
			ID:          tool.GenerateUUIDV7(),
			Email:       email,
			Phone:       phone,
			Amount:      req.Amount,
			Currency:    currencyKES,
			PaymentType: req.Type,
			Status:      types.PaymentStatusPending,
			Metadata:    datatypes.NewJSONType(meta),
		}
		if req.UserID != "" {
			uid := req.UserID
			p.UserID = &uid
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return nil, apperr.Wrap(err)
		}
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_initiated", "payment_id", p.ID, "payment_type", p.PaymentType, "amount", p.Amount)
	return s.push(ctx, p)
}

// reusableRegistration returns the earlier attempt for email whose push never
// reached the provider, refreshed with the new details.
func (s *Service) reusableRegistration(ctx context.Context, email, phone string, amount int64, meta *models.PaymentMetadata) (*models.Payment, error) {
	p, err := s.payments.FindReusableRegistration(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	values := map[string]any{
		"phone":    phone,
		"amount":   amount,
		"metadata": jsonMeta(meta),
	}
	if err := s.payments.UpdateFields(ctx, p.ID, values); err != nil {
		return nil, err
	}
	p.Phone = phone
	p.Amount = amount
	p.Metadata = datatypes.NewJSONType(meta)
	logctx.FromCtx(ctx, s.log).Infow("registration_payment_reused", "payment_id", p.ID)
	return p, nil
}

func (s *Service) push(ctx context.Context, p *models.Payment) (*InitiateResult, error) {
	lg := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "payment_type", p.PaymentType)
	res, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            p.Phone,
		Amount:           p.Amount,
		AccountReference: p.PaymentType.AccountReference(),
		Description:      p.PaymentType.Description(),
	})
	if err != nil {
		s.metrics.STKPush(string(p.PaymentType), "error")
		if errors.Is(err, mpesa.ErrInvalidPhone) {
			return nil, invalidPhone()
		}
		lg.Warnw("payment_push_failed", "err", err)
		return &InitiateResult{PaymentID: p.ID, Status: p.Status, Amount: p.Amount}, apperr.UnavailableErr(err)
	}
	s.metrics.STKPush(string(p.PaymentType), "sent")

	ok, err := s.payments.RecordPush(ctx, p.ID, res.MerchantRequestID, res.CheckoutRequestID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if ok {
		p.Status = types.PaymentStatusProcessing
	} else {
		// a callback or override already moved the row
		lg.Warnw("payment_push_not_recorded", "checkout_request_id", res.CheckoutRequestID)
		if err := s.payments.UpdateFields(ctx, p.ID, map[string]any{
			"merchant_request_id": res.MerchantRequestID,
			"checkout_request_id": res.CheckoutRequestID,
		}); err != nil {
			return nil, apperr.Wrap(err)
		}
	}
	p.MerchantRequestID = &res.MerchantRequestID
	p.CheckoutRequestID = &res.CheckoutRequestID
	lg.Infow("payment_push_sent", "checkout_request_id", res.CheckoutRequestID)
	return &InitiateResult{
		PaymentID:         p.ID,
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		Status:            p.Status,
		Amount:            p.Amount,
		CustomerMessage:   res.CustomerMessage,
	}, nil
}

type RegisterRequest struct {
	FirstName      string `json:"first_name" binding:"required,max=128"`
	LastName       string `json:"last_name" binding:"required,max=128"`
	Email          string `json:"email" binding:"required,email"`
	Phone          string `json:"phone" binding:"required"`
	GraduationYear int    `json:"graduation_year" binding:"omitempty,min=1950,max=2100"`
	Course         string `json:"course" binding:"max=255"`
}

// Register starts the registration fee payment. The profile is only created
// once the payment is confirmed.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*InitiateResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidErr("invalid email address", map[string]string{"email": "must be a valid email address"})
	}
	profile, err := s.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil && profile.Status == types.ProfileStatusActive:
		return nil, apperr.ConflictErr("an active membership already exists for this email, sign in to renew")
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Wrap(err)
	}
	form := &models.RegistrationForm{
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Email:          email,
		Phone:          req.Phone,
		GraduationYear: req.GraduationYear,
		Course:         strings.TrimSpace(req.Course),
	}
	return s.Initiate(ctx, InitiateRequest{
		Email:    email,
		Phone:    req.Phone,
		Amount:   s.fees.Registration,
		Type:     types.PaymentTypeRegistration,
		Metadata: &models.PaymentMetadata{Registration: form},
	})
}

// Renew starts the renewal fee payment for a signed-in member. phone falls
// back to the profile's number.
func (s *Service) Renew(ctx context.Context, userID, phone string) (*InitiateResult, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if profile.Status == types.ProfileStatusInactive && profile.Number() == "" {
		return nil, apperr.ConflictErr("profile has no membership to renew, register instead")
	}
	if strings.TrimSpace(phone) == "" {
		phone = profile.Phone
	}
	return s.Initiate(ctx, InitiateRequest{
		UserID: profile.ID,
		Email:  profile.Email,
		Phone:  phone,
		Amount: s.fees.Renewal,
		Type:   types.PaymentTypeRenewal,
	})
}

type RetryRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Phone     string `json:"phone"`
	// Email must match a guest payment's email.
	Email string `json:"email"`
	// CallerID is the signed-in user, set by the handler.
	CallerID string `json:"-"`
}

// Retry resends a push. An attempt the provider never accepted is pushed
// again as is; a failed attempt is replaced by a new one pointing back at it.
func (s *Service) Retry(ctx context.Context, req RetryRequest) (*InitiateResult, error) {
	p, err := s.payments.Get(ctx, req.PaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("payment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if err := retryAllowed(p, req); err != nil {
		return nil, err
	}
	switch p.Status {
	case types.PaymentStatusConfirmed:
		return nil, apperr.ConflictErr("payment is already confirmed")
	case types.PaymentStatusProcessing:
		return nil, apperr.ConflictErr("payment is still being processed, check its status first")
	case types.PaymentStatusPending:
		if p.CheckoutID() == "" {
			if req.Phone != "" {
				phone, err := mpesa.NormalizePhone(req.Phone)
				if err != nil {
					return nil, invalidPhone()
				}
				if err := s.payments.UpdateFields(ctx, p.ID, map[string]any{"phone": phone}); err != nil {
					return nil, apperr.Wrap(err)
				}
				p.Phone = phone
			}
			return s.push(ctx, p)
		}
		return nil, apperr.ConflictErr("payment is still being processed, check its status first")
	}

	meta := *p.Meta()
	meta.RetryOf = p.ID
	meta.Override = nil
	phone := p.Phone
	if req.Phone != "" {
		phone = req.Phone
	}
	return s.Initiate(ctx, InitiateRequest{
		UserID:   p.OwnerID(),
		Email:    p.Email,
		Phone:    phone,
		Amount:   p.Amount,
		Type:     p.PaymentType,
		Metadata: &meta,
	})
}

// retryAllowed checks the caller owns p. Member payments need the owner's
// session; guest payments need the email they were started with. A mismatch
// reads as not found so payment ids cannot be guessed.
func retryAllowed(p *models.Payment, req RetryRequest) error {
	if owner := p.OwnerID(); owner != "" {
		if req.CallerID == "" {
			return apperr.UnauthorizedErr("sign in to retry this payment")
		}
		if req.CallerID != owner {
			return apperr.NotFoundErr("payment not found")
		}
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(req.Email), p.Email) {
		return apperr.NotFoundErr("payment not found")
	}
	return nil
}

func invalidPhone() error {
	return apperr.InvalidErr("invalid phone number", map[string]string{"phone": "use a Safaricom number such as 0712345678"})
}

func jsonMeta(m *models.PaymentMetadata) datatypes.JSONType[*models.PaymentMetadata] {
	return datatypes.NewJSONType(m)
}
