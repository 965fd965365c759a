package bot

import (
	"context"
	"errors"
)

type fanoutMessenger []Messenger

// FanoutMessenger sends every reply through each of the given messengers,
// so the same bot can serve Matrix and the dev websocket gateway at once.
func FanoutMessenger(messengers ...Messenger) Messenger {
	return fanoutMessenger(messengers)
}

func (f fanoutMessenger) Send(ctx context.Context, roomID, body string) error {
	var errs []error
	for _, m := range f {
		if err := m.Send(ctx, roomID, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
