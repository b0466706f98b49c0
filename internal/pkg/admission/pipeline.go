package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/billing"
	"github.com/ManuelReschke/TenantFox/internal/pkg/clientip"
	"github.com/ManuelReschke/TenantFox/internal/pkg/ratelimit"
)

const (
	HeaderSecret    = "X-Webhook-Secret"
	HeaderSignature = "X-Webhook-Signature"
)

// secretQueryParams are checked in order when HeaderSecret is absent.
var secretQueryParams = []string{"secret", "token"}

// Outcomes passed to the OutcomeRecorder besides the rejection codes.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// Applier applies a verified provider event at most once per event id.
type Applier interface {
	ApplyVerifiedEvent(ctx context.Context, payload json.RawMessage) (billing.ApplyResult, error)
}

// OutcomeRecorder counts pipeline outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome string)
}

// Response is the body of an admitted request.
type Response struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate"`
	Processed bool `json:"processed"`
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Pipeline admits inbound billing webhooks and hands verified payloads to an Applier.
type Pipeline struct {
	cfg      Config
	limiter  ratelimit.Checker
	applier  Applier
	recorder OutcomeRecorder
}

type Option func(*Pipeline)

func WithRecorder(r OutcomeRecorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

func New(cfg Config, limiter ratelimit.Checker, applier Applier, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		limiter: limiter,
		applier: applier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle is the fiber handler for the webhook endpoint.
func (p *Pipeline) Handle(c *fiber.Ctx) error {
	ip := clientip.FromCtx(c)

	result, err := p.admit(c, ip)
	if err != nil {
		var rej *RejectError
		if !errors.As(err, &rej) {
			rej = reject(StageApply, fmt.Errorf("%w: %v", ErrApplierFailure, err))
		}
		return p.respondReject(c, ip, rej)
	}

	outcome := OutcomeIgnored
	switch {
	case result.Duplicate:
		outcome = OutcomeDuplicate
	case result.Processed:
		outcome = OutcomeProcessed
	}
	log.Infof("webhook: %s from %s", outcome, clientip.KeyFor(ip))
	p.record(c.UserContext(), outcome)

	return c.Status(fiber.StatusOK).JSON(Response{
		OK:        true,
		Duplicate: result.Duplicate,
		Processed: result.Processed,
	})
}

func (p *Pipeline) admit(c *fiber.Ctx, ip string) (billing.ApplyResult, error) {
	var none billing.ApplyResult
	ctx := c.UserContext()

	if !p.cfg.Allowlist.Allows(ip) {
		return none, reject(StageIPCheck, ErrAdmissionDenied)
	}

	if p.limiter != nil {
		limit, err := p.limiter.Check(ctx, clientip.KeyFor(ip))
		if err != nil {
			// The limiter store is down; credentials still gate the request.
			log.Errorf("webhook: rate limiter unavailable, admitting %s: %v", clientip.KeyFor(ip), err)
		} else if limit.Limited {
			rej := reject(StageRateCheck, ErrRateLimited)
			rej.RetryAfter = limit.RetryAfterSeconds
			return none, rej
		}
	}

	if p.cfg.SharedSecret == "" {
		return none, reject(StageSecretCheck, fmt.Errorf("%w: shared secret", ErrConfiguration))
	}
	presented := presentedSecret(c)
	if presented == "" {
		return none, reject(StageSecretCheck, fmt.Errorf("%w: secret missing", ErrAuthenticationFailed))
	}
	if !billing.VerifySharedSecret(presented, p.cfg.SharedSecret) {
		return none, reject(StageSecretCheck, fmt.Errorf("%w: secret mismatch", ErrAuthenticationFailed))
	}

	if err := CheckDeclaredLength(c.Request().Header.ContentLength()); err != nil {
		return none, reject(StageDeclaredSize, err)
	}

	if p.cfg.SigningKey == "" {
		return none, reject(StageSignatureCheck, fmt.Errorf("%w: signing key", ErrConfiguration))
	}
	signature := c.Get(HeaderSignature)
	if signature == "" {
		return none, reject(StageSignatureCheck, fmt.Errorf("%w: signature missing", ErrAuthenticationFailed))
	}

	mac := billing.NewPayloadMAC(p.cfg.SigningKey)
	body, err := readBody(c, mac)
	if err != nil {
		return none, reject(StageParse, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err))
	}
	if !billing.VerifyPayloadMAC(mac, signature) {
		return none, reject(StageSignatureCheck, fmt.Errorf("%w: signature mismatch", ErrAuthenticationFailed))
	}

	if err := CheckActualLength(body); err != nil {
		return none, reject(StageSizeCheck, err)
	}

	if !json.Valid(body) {
		return none, reject(StageParse, ErrMalformedPayload)
	}

	return p.apply(ctx, json.RawMessage(body))
}

// apply runs the applier and turns a panic into the generic applier failure.
func (p *Pipeline) apply(ctx context.Context, payload json.RawMessage) (result billing.ApplyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = billing.ApplyResult{}
			err = reject(StageApply, fmt.Errorf("%w: panic: %v", ErrApplierFailure, r))
		}
	}()

	result, err = p.applier.ApplyVerifiedEvent(ctx, payload)
	if err != nil {
		return billing.ApplyResult{}, reject(StageApply, fmt.Errorf("%w: %v", ErrApplierFailure, err))
	}
	return result, nil
}

// readBody feeds the whole request body into mac and keeps at most
// MaxBodyBytes+1 bytes of it, enough for CheckActualLength to reject an
// oversized body. With StreamRequestBody the body is read from the
// connection here.
func readBody(c *fiber.Ctx, mac io.Writer) ([]byte, error) {
	var src io.Reader
	if stream := c.Context().RequestBodyStream(); stream != nil {
		src = stream
	} else {
		src = bytes.NewReader(c.BodyRaw())
	}

	buf := &boundedBuffer{max: MaxBodyBytes + 1}
	if _, err := io.Copy(io.MultiWriter(mac, buf), src); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// boundedBuffer accepts every write and keeps the first max bytes.
type boundedBuffer struct {
	data []byte
	max  int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.max - len(b.data); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.data = append(b.data, p[:room]...)
	}
	return len(p), nil
}

func (p *Pipeline) respondReject(c *fiber.Ctx, ip string, rej *RejectError) error {
	if rej.Status >= fiber.StatusInternalServerError {
		log.Errorf("webhook: rejected %s: %v", clientip.KeyFor(ip), rej)
	} else {
		log.Warnf("webhook: rejected %s: %v", clientip.KeyFor(ip), rej)
	}
	p.record(c.UserContext(), rej.Code)

	if rej.Status == fiber.StatusTooManyRequests {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(rej.RetryAfter))
	}
	return c.Status(rej.Status).JSON(ErrorResponse{OK: false, Error: rej.Code})
}

func (p *Pipeline) record(ctx context.Context, outcome string) {
	if p.recorder != nil {
		p.recorder.RecordOutcome(ctx, outcome)
	}
}

// presentedSecret returns the secret exactly as sent. Only an empty value
// falls through to the next source.
func presentedSecret(c *fiber.Ctx) string {
	if s := c.Get(HeaderSecret); s != "" {
		return s
	}
	for _, name := range secretQueryParams {
		if s := c.Query(name); s != "" {
			return s
		}
	}
	return ""
}
