package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/asisten/pkg/llm"
)

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Enabled reports whether credentials and a sender are configured.
func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

type smsArgs struct {
	To   string `json:"to" jsonschema_description:"Número de destino en formato E.164, por ejemplo +5493794000000."`
	Body string `json:"body" jsonschema_description:"Texto del mensaje."`
}

// SMSSender sends text messages through Twilio.
type SMSSender struct {
	cfg    SMSConfig
	client messageCreator
}

func NewSMSSender(cfg SMSConfig) *SMSSender {
	return &SMSSender{cfg: cfg}
}

func (s *SMSSender) Tool() llm.Tool {
	return llm.Tool{
		Name:        "send_sms",
		Description: "Envía un mensaje de texto (SMS) al número indicado. Úsalo solo cuando el usuario lo pida expresamente.",
		Schema:      SchemaFor(&smsArgs{}),
	}
}

func (s *SMSSender) Handle(ctx context.Context, args map[string]any) (string, error) {
	_ = ctx
	var in smsArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	to := strings.TrimSpace(in.To)
	body := strings.TrimSpace(in.Body)
	if to == "" || body == "" {
		return "", errors.New("to/body required")
	}
	if !s.cfg.Enabled() {
		return "", errors.New("missing twilio credentials")
	}
	client := s.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: s.cfg.AccountSID,
			Password: s.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.From)
	params.SetBody(body)
	resp, err := client.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing message sid")
	}
	return fmt.Sprintf("Mensaje enviado a %s (id %s).", to, *resp.Sid), nil
}
