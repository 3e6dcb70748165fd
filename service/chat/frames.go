package chat

import (
	"encoding/json"

	"IMSync/module/chat/event"
	errs "IMSync/tools/errs"
)

// Frame is the wire envelope. Kind selects exactly one payload shape; the
// payload is decoded into its typed struct before dispatch, handlers never see
// raw JSON.
type Frame struct {
	Kind    event.Kind      `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func decodePayload[T any](raw json.RawMessage) (*T, error) {
	var p T
	if len(raw) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.ErrValidation.WrapMsg("malformed payload", "err", err.Error())
	}
	return &p, nil
}

// ParseFrame decodes one inbound frame into its kind and typed payload. Only
// client operations are accepted; an unknown name or a server event kind sent
// by a client is rejected the same way.
func ParseFrame(raw []byte) (event.Kind, any, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return event.KindUnknown, nil, errs.ErrValidation.WrapMsg("malformed frame", "err", err.Error())
	}

	switch f.Kind {
	case event.KindJoin:
		p, err := decodePayload[event.Join](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	case event.KindLeave:
		p, err := decodePayload[event.Leave](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	case event.KindSubmit:
		p, err := decodePayload[event.Submit](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	case event.KindTyping:
		p, err := decodePayload[event.Typing](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	case event.KindRead:
		p, err := decodePayload[event.Read](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	case event.KindHeartbeat:
		p, err := decodePayload[event.Heartbeat](f.Payload)
		if err != nil {
			return event.KindUnknown, nil, err
		}
		return f.Kind, p, nil
	}
	return event.KindUnknown, nil, errs.ErrValidation.WrapMsg("unsupported frame kind", "kind", f.Kind.String())
}

// MarshalFrame builds wire bytes for one outbound event.
func MarshalFrame(kind event.Kind, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.New("marshal payload", "kind", kind.String(), "err", err.Error())
	}
	return json.Marshal(Frame{Kind: kind, Payload: body})
}
