package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/QQHoney/tg-signer/internal/peer"
)

// defaultSignInterval is the delay in seconds between signing consecutive
// chats, introduced with the v2 shape.
const defaultSignInterval = 1

// SignChat is one chat entry of a sign task: where to sign, what to post,
// and which response challenge, if any, the chat throws back.
type SignChat struct {
	ChatID                peer.ID `json:"chat_id"`
	SignText              string  `json:"sign_text"`
	DeleteAfter           *int    `json:"delete_after,omitempty"`
	AsDice                string  `json:"as_dice,omitempty"`
	TextOfBtnToClick      string  `json:"text_of_btn_to_click,omitempty"`
	ChooseOptionByImage   bool    `json:"choose_option_by_image,omitempty"`
	HasCalculationProblem bool    `json:"has_calculation_problem,omitempty"`
}

// NeedsResponse reports whether signing this chat requires reacting to a
// follow-up message (button click, image option or calculation challenge).
func (c SignChat) NeedsResponse() bool {
	return c.TextOfBtnToClick != "" || c.ChooseOptionByImage || c.HasCalculationProblem
}

// Validate checks the mandatory fields of a chat entry.
func (c SignChat) Validate() error {
	if c.ChatID.IsZero() {
		return errors.New("sign chat: chat_id is required")
	}
	if c.SignText == "" {
		return errors.New("sign chat: sign_text is required")
	}
	if c.DeleteAfter != nil && *c.DeleteAfter < 0 {
		return errors.New("sign chat: delete_after must not be negative")
	}
	return nil
}

// SignConfigV1 is the original single-chat sign shape, kept only so old
// files keep loading.
type SignConfigV1 struct {
	ChatID        int64  `json:"chat_id"`
	SignText      string `json:"sign_text"`
	SignAt        string `json:"sign_at"`
	RandomSeconds int    `json:"random_seconds"`
}

// Validate checks the v1 shape.
func (c *SignConfigV1) Validate() error {
	if c.ChatID == 0 {
		return errors.New("sign config v1: chat_id is required")
	}
	if c.SignText == "" {
		return errors.New("sign config v1: sign_text is required")
	}
	if c.SignAt == "" {
		return errors.New("sign config v1: sign_at is required")
	}
	if c.RandomSeconds < 0 {
		return errors.New("sign config v1: random_seconds must not be negative")
	}
	return nil
}

// upgrade lifts a v1 document into the v2 shape: the inline chat becomes a
// one-element chat list, delete_after stays absent, and the new inter-chat
// interval takes its default.
func (c *SignConfigV1) upgrade() *SignConfig {
	return &SignConfig{
		Chats: []SignChat{{
			ChatID:   peer.Num(c.ChatID),
			SignText: c.SignText,
		}},
		SignAt:        c.SignAt,
		RandomSeconds: c.RandomSeconds,
		SignInterval:  defaultSignInterval,
	}
}

// SignConfig is the current (v2) sign task shape: an ordered list of chats
// signed in sequence at a scheduled time.
type SignConfig struct {
	Chats []SignChat `json:"chats"`
	// SignAt is either a clock time ("06:00" / "06:00:30") or a crontab
	// expression.
	SignAt        string `json:"sign_at"`
	RandomSeconds int    `json:"random_seconds"`
	SignInterval  int    `json:"sign_interval"`
}

// UnmarshalJSON decodes the v2 shape with its documented default for the
// inter-chat interval.
func (c *SignConfig) UnmarshalJSON(data []byte) error {
	type plain SignConfig
	aux := plain{SignInterval: defaultSignInterval}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = SignConfig(aux)
	return nil
}

// Validate checks the v2 shape.
func (c *SignConfig) Validate() error {
	if c.Chats == nil {
		return errors.New("sign config: chats is required")
	}
	if c.SignAt == "" {
		return errors.New("sign config: sign_at is required")
	}
	if c.RandomSeconds < 0 {
		return errors.New("sign config: random_seconds must not be negative")
	}
	if c.SignInterval < 0 {
		return errors.New("sign config: sign_interval must not be negative")
	}
	for i, chat := range c.Chats {
		if err := chat.Validate(); err != nil {
			return fmt.Errorf("chats[%d]: %w", i, err)
		}
	}
	return nil
}

// SignFamily registers every known sign-config shape. Current is v2; v1
// records upgrade in one step.
var SignFamily = Family{
	Name: "sign",
	Current: Version{
		Tag: 2,
		New: func() Document { return new(SignConfig) },
	},
	Olds: []Version{
		{
			Tag: 1,
			New: func() Document { return new(SignConfigV1) },
			Upgrade: func(d Document) Document {
				return d.(*SignConfigV1).upgrade()
			},
		},
	},
}

// LoadSignConfig loads a raw sign-config record, upgrading old shapes to
// current. The flag reports whether an upgrade happened.
func LoadSignConfig(raw []byte) (*SignConfig, bool, error) {
	doc, upgraded, err := SignFamily.Load(raw)
	if err != nil {
		return nil, false, err
	}
	return doc.(*SignConfig), upgraded, nil
}
