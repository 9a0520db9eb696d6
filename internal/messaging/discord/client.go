// Package discord adapts a discordgo session to the messaging.Client
// contract. Discord plays the role of the messaging backend: the gateway
// connection is the SDK session, and message attachments back the image
// pipeline's attachment scheme.
package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/couriermsg/courier/internal/messaging"
	"github.com/couriermsg/courier/internal/pkg/idgen"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// Token is the bot token used to identify to the Discord gateway.
	Token string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client implements messaging.Client over a discordgo session. The session
// is created eagerly but the gateway connection is opened only when an
// authentication challenge has been answered, so an unauthenticated process
// holds no connection.
type Client struct {
	session *discordgo.Session
	opts    messaging.Options
	log     *slog.Logger

	mu           sync.Mutex
	listener     messaging.ChallengeListener
	pendingNonce string
	open         bool
}

var _ messaging.Client = (*Client)(nil)

// New creates a Client. No network I/O happens here beyond session setup;
// the gateway is opened during the challenge flow.
func New(cfg Config, opts messaging.Options) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		session: session,
		opts:    opts,
		log:     log,
	}
	session.AddHandler(c.onReady)
	session.AddHandler(c.onDisconnect)
	return c, nil
}

// RegisterChallengeListener implements messaging.Client.
func (c *Client) RegisterChallengeListener(l messaging.ChallengeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Authenticate implements messaging.Client. It issues a challenge nonce to
// the registered listener; the flow completes when the listener calls
// AnswerChallenge.
func (c *Client) Authenticate() error {
	c.mu.Lock()
	l := c.listener
	nonce := idgen.GenerateID()
	c.pendingNonce = nonce
	c.mu.Unlock()

	if l == nil {
		return fmt.Errorf("discord: no challenge listener registered")
	}

	go l.OnAuthenticationChallenge(c, nonce)
	return nil
}

// AnswerChallenge implements messaging.Client. A non-empty identity token
// resolves the pending challenge and opens the gateway connection; results
// are delivered through the listener.
func (c *Client) AnswerChallenge(identityToken string) error {
	if identityToken == "" {
		return fmt.Errorf("discord: empty identity token")
	}

	c.mu.Lock()
	if c.pendingNonce == "" {
		c.mu.Unlock()
		return fmt.Errorf("discord: no pending authentication challenge")
	}
	c.pendingNonce = ""
	alreadyOpen := c.open
	c.mu.Unlock()

	if alreadyOpen {
		// Gateway already connected; report success directly.
		go c.notifyAuthenticated()
		return nil
	}

	go func() {
		if err := c.session.Open(); err != nil {
			c.log.Warn("failed to open Discord connection", "error", err)
			if l := c.currentListener(); l != nil {
				l.OnAuthenticationError(c, err.Error())
			}
			return
		}
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
	}()
	return nil
}

// Deauthenticate implements messaging.Client.
func (c *Client) Deauthenticate(ctx context.Context, cb messaging.DeauthenticationCallback) {
	go func() {
		c.mu.Lock()
		wasOpen := c.open
		c.open = false
		c.mu.Unlock()

		if wasOpen {
			if err := c.session.Close(); err != nil {
				cb.DeauthenticationFailed(c, err.Error())
				return
			}
		}
		if l := c.currentListener(); l != nil {
			l.OnDeauthenticated(c)
		}
		cb.DeauthenticationSucceeded(c)
	}()
}

// Attachment implements messaging.Client. The attachment ID has the form
// "channelID/messageID/attachmentID".
func (c *Client) Attachment(ctx context.Context, id string) (io.ReadCloser, error) {
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("discord: malformed attachment id %q", id)
	}
	channelID, messageID, attachmentID := parts[0], parts[1], parts[2]

	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s/%s: %w", channelID, messageID, err)
	}

	for _, att := range msg.Attachments {
		if att.ID != attachmentID {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build attachment request: %w", err)
		}
		resp, err := c.session.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download attachment %s: %w", attachmentID, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("attachment download for %s returned status %d", attachmentID, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("discord: attachment %q not found on message %s/%s", attachmentID, channelID, messageID)
}

// Close implements messaging.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()
	if !wasOpen {
		return nil
	}
	return c.session.Close()
}

// Options returns the construction options, for callers deciding what to
// download eagerly.
func (c *Client) Options() messaging.Options {
	return c.opts
}

func (c *Client) currentListener() messaging.ChallengeListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func (c *Client) notifyAuthenticated() {
	if l := c.currentListener(); l != nil {
		userID := ""
		if c.session.State != nil && c.session.State.User != nil {
			userID = c.session.State.User.ID
		}
		l.OnAuthenticated(c, userID)
	}
}

// onReady is called when the gateway session becomes ready.
func (c *Client) onReady(s *discordgo.Session, event *discordgo.Ready) {
	c.log.Info("connected to Discord",
		slog.String("username", event.User.Username),
		slog.Int("guilds", len(event.Guilds)),
	)
	if l := c.currentListener(); l != nil {
		l.OnAuthenticated(c, event.User.ID)
	}
}

// onDisconnect is called when the gateway connection drops. discordgo
// reconnects on its own, so this is informational only.
func (c *Client) onDisconnect(s *discordgo.Session, event *discordgo.Disconnect) {
	c.log.Warn("disconnected from Discord gateway")
}
