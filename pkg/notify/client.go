package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Channel kinds of the backend that accept plain text and embeds.
const (
	channelTypeGuildText         = 0
	channelTypeGuildAnnouncement = 5
)

var textChannelTypes = []int{channelTypeGuildText, channelTypeGuildAnnouncement}

type Client struct {
	httpClient *http.Client
	baseUrl    string
	token      string

	mutex    sync.Mutex
	channels map[string]Sender
}

func NewClient(baseUrl, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseUrl:    baseUrl,
		token:      token,
		channels:   make(map[string]Sender),
	}
}

// Connect validates the token against the backend. It must succeed before
// any delivery is attempted.
func (c *Client) Connect() error {
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := c.get("/users/@me", &me); err != nil {
		return errors.Wrap(err, "error validating the bot token")
	}

	log.Printf("[INFO] logged in as %s (ID: %s)", me.Username, me.ID)
	return nil
}

// Ping revalidates the token without the connect logging. Used by the
// strict readiness watchdog.
func (c *Client) Ping() error {
	var me struct {
		ID string `json:"id"`
	}
	return c.get("/users/@me", &me)
}

// Channel resolves a channel id to a Sender. It fails when the id is not
// numeric, the channel does not exist, or the channel is not a text-sendable
// kind. Resolutions are cached.
func (c *Client) Channel(id string) (Sender, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if channel, ok := c.channels[id]; ok {
		return channel, nil
	}

	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return nil, errors.Errorf("invalid channel ID %q: not a number", id)
	}

	var info struct {
		ID   string `json:"id"`
		Type int    `json:"type"`
		Name string `json:"name"`
	}
	if err := c.get("/channels/"+id, &info); err != nil {
		return nil, errors.Wrapf(err, "error resolving channel %s", id)
	}

	if !slices.Contains(textChannelTypes, info.Type) {
		return nil, errors.Errorf("channel with ID %s is not a text channel (got type %d)", id, info.Type)
	}

	channel := &textChannel{client: c, id: id}
	c.channels[id] = channel
	return channel, nil
}

func (c *Client) get(path string, out interface{}) error {
	req, err := http.NewRequest("GET", c.baseUrl+path, nil)
	if err != nil {
		return errors.Wrap(err, "error building the request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "error performing the request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("http error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "error encoding the payload")
	}

	req, err := http.NewRequest("POST", c.baseUrl+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "error building the request")
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "error performing the request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("http error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "feedherald")
}

type textChannel struct {
	client *Client
	id     string
}

type embedPayload struct {
	Title       string        `json:"title,omitempty"`
	URL         string        `json:"url,omitempty"`
	Description string        `json:"description,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Color       int           `json:"color,omitempty"`
	Image       *imagePayload `json:"image,omitempty"`
	Footer      *textPayload  `json:"footer,omitempty"`
}

type imagePayload struct {
	URL string `json:"url"`
}

type textPayload struct {
	Text string `json:"text"`
}

const embedColorBlue = 0x3498db

func (ch *textChannel) Send(message Message) error {
	embed := embedPayload{
		Title:       message.Title,
		URL:         message.URL,
		Description: message.Description,
		Color:       embedColorBlue,
	}
	if message.Timestamp != nil {
		embed.Timestamp = message.Timestamp.UTC().Format(time.RFC3339)
	}
	if message.ImageURL != "" {
		embed.Image = &imagePayload{URL: message.ImageURL}
	}
	if message.Footer != "" {
		embed.Footer = &textPayload{Text: message.Footer}
	}

	payload := map[string]interface{}{
		"embeds": []embedPayload{embed},
	}
	return ch.client.post(fmt.Sprintf("/channels/%s/messages", ch.id), payload)
}

func (ch *textChannel) SendText(text string) error {
	payload := map[string]interface{}{
		"content": text,
	}
	return ch.client.post(fmt.Sprintf("/channels/%s/messages", ch.id), payload)
}
