package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/promocode/domain"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// codeAlphabet omits 0, O, 1 and I so codes survive hand transcription.
// 32 symbols at 20 characters is 100 bits of entropy.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const issueRetries = 5

type IssuerParams struct {
	fx.In

	Config config.Config
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
}

// issuer mints claim codes during transaction creation. It is deliberately
// free of any dependency on the transaction service so creation wiring stays
// acyclic.
type issuer struct {
	cfg   config.Config
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewIssuer(p IssuerParams) transactiondomain.CodeIssuer {
	return &issuer{
		cfg:   p.Config,
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// IssueTx creates the single claim code for a freshly persisted transaction,
// inside the creation DB transaction. The unique index on code is the
// collision backstop; generation retries on conflict.
func (s *issuer) IssueTx(ctx context.Context, tx *gorm.DB, t *transactiondomain.Transaction) (*transactiondomain.IssuedCode, error) {
	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		code, err := generateCode(s.cfg.Promo.CodeLength)
		if err != nil {
			return nil, err
		}

		claimURL := fmt.Sprintf("%s/claim/%s", s.cfg.PublicBaseURL, code)
		png, err := qrcode.Encode(claimURL, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}

		row := &domain.PromoCode{
			ID:             s.genID.Generate(),
			TransactionID:  t.ID,
			Code:           code,
			Status:         domain.StatusUnclaimed,
			ClaimURL:       claimURL,
			QRCodePNG:      base64.StdEncoding.EncodeToString(png),
			RecipientEmail: t.ContactEmail,
			CreatedAt:      s.clock.Now().UTC(),
			ExpiresAt:      t.ExpiresAt,
		}
		if err := s.repo.Insert(ctx, tx, row); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				lastErr = err
				continue
			}
			return nil, err
		}

		return &transactiondomain.IssuedCode{
			Code:      row.Code,
			ClaimURL:  row.ClaimURL,
			QRCodePNG: row.QRCodePNG,
			ExpiresAt: row.ExpiresAt,
		}, nil
	}
	return nil, fmt.Errorf("issue code: exhausted retries: %w", lastErr)
}

func generateCode(length int) (string, error) {
	if length <= 0 {
		length = 20
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// len(codeAlphabet) divides 256, so the modulo is uniform.
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
