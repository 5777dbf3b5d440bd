package types

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/flight"
)

type logger struct {
	log *logrus.Entry
}

// NewLogger prints progress in the console format and every other message
// as json.
func NewLogger(entry *logrus.Entry) MessageHandler {
	return &logger{entry}
}

func (l *logger) Receive(message Message) {
	if p, ok := message.Message.(flight.Progress); ok {
		if line := FormatProgress(p); line != "" {
			l.log.Info(line)
		}
		return
	}

	b, _ := json.Marshal(message.Message)
	l.log.Infof("Message: %s (%s -> %s): %s", message.MessageType, message.From, message.To, string(b))
}

func (l *logger) Run(ctx context.Context, wg *sync.WaitGroup, post PostFn) {
}

// FormatProgress renders a progress sample as a console line. Samples of
// the pre-arm and arming waits have nothing to show.
func FormatProgress(p flight.Progress) string {
	switch p.Target {
	case flight.TargetWaypoint:
		return fmt.Sprintf("[Target %d] Distance: %.1fm Altitude: %.2fm", p.Cursor, p.Distance, p.Altitude)
	case flight.TargetHome:
		return fmt.Sprintf("[Back to home] Distance: %.1fm Altitude: %.2fm", p.Distance, p.Altitude)
	}
	if p.Phase == flight.TakingOff {
		return fmt.Sprintf("Altitude: %.2fm", p.Altitude)
	}
	return ""
}
