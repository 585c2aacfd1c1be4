package helpers

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

type LoggerConfig struct {
	LogFile        string
	Level          string
	TelegramOutput bool
	TelegramToken  string
	TelegramChatID string
}

type FileLogger struct {
	logger         *log.Logger
	telegramOutput bool
	telegramToken  string
	telegramChatId string
	sendTelegram   func(message string, token string, chatID string) error
}

var Logger = NewFileLogger(os.Stderr)

func NewFileLogger(out io.Writer) *FileLogger {
	plainFormatter := new(PlainFormatter)
	plainFormatter.TimestampFormat = "2006-01-02 15:04:05"
	plainFormatter.LevelDesc = []string{"PANIC", "FATAL", "ERROR", "WARN", "INFO ", "DEBUG", "TRACE"}
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(plainFormatter)
	logger.SetLevel(log.InfoLevel)
	return &FileLogger{logger: logger, sendTelegram: sendOnTelegramChannel}
}

// ConfigureLogger points the package logger at the configured file, level and
// Telegram channel. The returned closer releases the log file.
func ConfigureLogger(cfg LoggerConfig) (io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		out = f
		closer = f
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}

	Logger.logger.SetOutput(out)
	Logger.logger.SetLevel(level)
	Logger.telegramOutput = cfg.TelegramOutput
	Logger.telegramToken = cfg.TelegramToken
	Logger.telegramChatId = cfg.TelegramChatID
	return closer, nil
}

func (l *FileLogger) WithFields(fields log.Fields) *log.Entry {
	return l.logger.WithFields(fields)
}

func (l *FileLogger) Errorln(args ...interface{}) {
	l.logger.Errorln(args...)
}

func (l *FileLogger) Fatalln(args ...interface{}) {
	l.logger.Fatalln(args...)
}

func (l *FileLogger) Warnln(args ...interface{}) {
	l.logger.Warnln(args...)
}

func (l *FileLogger) Infoln(args ...interface{}) {
	l.logger.Infoln(args...)
}

func (l *FileLogger) Traceln(args ...interface{}) {
	l.logger.Traceln(args...)
}

func (l *FileLogger) Debugln(args ...interface{}) {
	l.logger.Debugln(args...)
}

// Notify logs at WARN and echoes the message to Telegram when enabled.
// Telegram failures are logged, never returned.
func (l *FileLogger) Notify(message string) {
	l.logger.Warnln(message)
	if !l.telegramOutput {
		return
	}
	if err := l.sendTelegram(message, l.telegramToken, l.telegramChatId); err != nil {
		l.logger.Errorln("error sending telegram notification: " + err.Error())
	}
}

type PlainFormatter struct {
	TimestampFormat string
	LevelDesc       []string
}

func (f PlainFormatter) Format(entry *log.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)
	message := entry.Message
	for key, value := range entry.Data {
		message += fmt.Sprintf(" %s=%v", key, value)
	}
	return []byte(fmt.Sprintf("%s %s %s\n", f.LevelDesc[entry.Level], timestamp, message)), nil
}

func sendOnTelegramChannel(message string, token string, chatID string) error {
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return err
	}

	id, err := b.ChatByID(chatID)
	if err != nil {
		return err
	}
	_, err = b.Send(id, message)
	return err
}
