package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// typingInterval keeps the indicator alive; Telegram clears it after ~5s.
const typingInterval = 4 * time.Second

// Typing shows the typing indicator and repeats it until the returned stop
// function is called or ctx is done. Failures are only logged. stop may be
// called more than once.
func (t *Transport) Typing(ctx context.Context, chatID int64) (stop func()) {
	t.sendTyping(ctx, chatID)

	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(t.typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				t.sendTyping(loopCtx, chatID)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (t *Transport) sendTyping(ctx context.Context, chatID int64) {
	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
	defer cancel()
	_, err := t.bot.SendChatAction(sendCtx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
	if err != nil && ctx.Err() == nil {
		t.log.DebugContext(ctx, "Typing action failed", "chat_id", chatID, "error", err)
	}
}
