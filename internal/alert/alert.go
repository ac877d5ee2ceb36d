// Package alert posts job failure notifications to Telegram.
//
// It listens on the event bus for run failures and forwards a short message
// per failure, rate limited so a flapping job cannot flood the chat.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"cronpoll/internal/eventbus"
	"cronpoll/internal/runner"
	logx "cronpoll/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec float64 // messages per second; 0 means 1 every 5s
}

// sender is the outbound seam; tests swap it for a recorder.
type sender interface {
	Send(text string) error
}

type teleSender struct {
	bot *tele.Bot
	to  tele.ChatID
}

func (s *teleSender) Send(text string) error {
	_, err := s.bot.Send(s.to, text)
	return err
}

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	out sender
	lim *rate.Limiter

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	// suppressed counts alerts dropped by the rate limiter since the last
	// delivered message.
	suppressed uint64
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("alerts enabled but token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("alerts enabled but chat_id is empty")
	}

	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	s := newWithSender(cfg, bus, log, &teleSender{bot: b, to: tele.ChatID(cfg.ChatID)})
	return s, nil
}

func newWithSender(cfg Config, bus eventbus.Bus, log logx.Logger, out sender) *Service {
	per := cfg.RatePerSec
	if per <= 0 {
		per = 0.2
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		out: out,
		lim: rate.NewLimiter(rate.Limit(per), 3),
	}
}

func (s *Service) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	ch, unsub := s.bus.Subscribe(32)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Topic != eventbus.TopicRunFailed {
					continue
				}
				re, ok := ev.Data.(runner.RunEvent)
				if !ok {
					continue
				}
				s.notify(re)
			}
		}
	}()
	s.log.Info("alerter started")
}

func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("alerter stopped")
}

func (s *Service) notify(re runner.RunEvent) {
	s.mu.Lock()
	if !s.lim.Allow() {
		s.suppressed++
		s.mu.Unlock()
		return
	}
	dropped := s.suppressed
	s.suppressed = 0
	s.mu.Unlock()

	msg := formatFailure(re, dropped)
	if err := s.out.Send(msg); err != nil {
		s.log.Warn("alert delivery failed", logx.String("job", re.Name), logx.Err(err))
	}
}

func formatFailure(re runner.RunEvent, dropped uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ job %q failed", re.Name)
	if re.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", re.Attempts)
	}
	fmt.Fprintf(&b, " (%s)", re.Duration.Round(time.Millisecond))
	if re.Error != "" {
		b.WriteString("\n")
		b.WriteString(truncate(re.Error, 500))
	}
	if dropped > 0 {
		fmt.Fprintf(&b, "\n(%d earlier failures were rate limited)", dropped)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
