package helpers

import (
	"bytes"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestPlainFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFileLogger(buf)
	logger.WithFields(log.Fields{"symbol": "BTCUSDC"}).Info("synced")

	assert.Regexp(t, `^INFO  \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} synced symbol=BTCUSDC\n$`, buf.String())
}

func TestNotifyEchoesToTelegram(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFileLogger(buf)
	var sent []string
	logger.sendTelegram = func(message string, token string, chatID string) error {
		sent = append(sent, chatID+":"+message)
		return errors.New("telegram down")
	}

	logger.Notify("history incomplete")
	assert.Empty(t, sent)

	logger.telegramOutput = true
	logger.telegramChatId = "42"
	logger.Notify("history incomplete")
	assert.Equal(t, []string{"42:history incomplete"}, sent)
	assert.Contains(t, buf.String(), "error sending telegram notification: telegram down")
}
