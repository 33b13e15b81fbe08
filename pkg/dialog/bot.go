// Package dialog implements the driver conversation: registration, truck
// changes, weighing reports from scale photos and the history/statistics menu.
// It is transport-neutral; WhatsApp and Telegram adapters feed it Messages and
// send back the returned reply.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"weighbot/models"
	"weighbot/pkg/store"
	"weighbot/pkg/weight"
)

// Dialog states persisted in UserState.State.
const (
	StateRegistrationName  = "registration_name"
	StateRegistrationPhone = "registration_phone"
	StateRegistrationTruck = "registration_truck"
	StateChangingTruck     = "changing_truck"
	StateAwaitingClient    = "awaiting_client"
	StateAwaitingPhoto     = "awaiting_photo"
	StateManualWeight      = "awaiting_manual_weight"
	StateConfirmation      = "awaiting_confirmation"
	StateStatsTruck        = "awaiting_stats_truck"
)

const historyLimit = 5

// Store is the persistence the dialog needs. *store.Store implements it.
type Store interface {
	Driver(ctx context.Context, chatID string) (*models.Driver, error)
	RegisterDriver(ctx context.Context, chatID, fullName, phone, truck string) (*models.Driver, error)
	UpdateTruck(ctx context.Context, chatID, truck string) error
	LastWeight(ctx context.Context, truck string) (float64, error)
	SaveWeighing(ctx context.Context, w *models.Weighing) error
	DriverHistory(ctx context.Context, chatID string, limit int) ([]models.Weighing, error)
	VehicleHistory(ctx context.Context, truck string, limit int) ([]models.Weighing, error)
	Vehicle(ctx context.Context, truck string) (*models.Vehicle, error)
	State(ctx context.Context, chatID string) (*models.UserState, error)
	SetState(ctx context.Context, chatID, state, data string) error
	ClearState(ctx context.Context, chatID string) error
}

// Extractor reads a weight from a stored photo. *weight.Pipeline implements it.
type Extractor interface {
	Extract(ctx context.Context, path string) weight.Result
}

// Reporter posts a confirmed weighing to the dispatcher group. photoURL is
// empty when the weight was not read from a photo.
type Reporter interface {
	Report(ctx context.Context, text, photoURL string) error
}

// Fetcher downloads url into the file dst.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

// Message is one incoming chat message. PhotoURL is set for image messages;
// HasMedia marks media whose download link could not be resolved.
type Message struct {
	ChatID   string
	Text     string
	PhotoURL string
	HasMedia bool
}

func (m Message) isPhoto() bool { return m.PhotoURL != "" || m.HasMedia }

type Config struct {
	MinWeight int
	MaxWeight int
	// PhotoDir receives downloaded scale photos.
	PhotoDir string
	// Location is used for dates shown to users. Defaults to time.Local.
	Location *time.Location
}

// draft is the JSON payload kept in UserState.Data between messages.
type draft struct {
	FullName       string  `json:"full_name,omitempty"`
	PersonalPhone  string  `json:"personal_phone,omitempty"`
	TruckNumber    string  `json:"truck_number,omitempty"`
	DriverName     string  `json:"driver_name,omitempty"`
	DriverPhone    string  `json:"driver_phone,omitempty"`
	ClientName     string  `json:"client_name,omitempty"`
	CurrentWeight  float64 `json:"current_weight,omitempty"`
	PreviousWeight float64 `json:"previous_weight,omitempty"`
	Manual         bool    `json:"manual,omitempty"`
	Method         string  `json:"method,omitempty"`
	PhotoPath      string  `json:"photo_path,omitempty"`
	PhotoURL       string  `json:"photo_url,omitempty"`
}

type Option func(*Bot)

func WithReporter(r Reporter) Option { return func(b *Bot) { b.reporter = r } }

func WithFetcher(f Fetcher) Option { return func(b *Bot) { b.fetcher = f } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

type Bot struct {
	cfg       Config
	store     Store
	extractor Extractor
	reporter  Reporter
	fetcher   Fetcher
	now       func() time.Time
	locks     sync.Map // chat id -> *sync.Mutex
}

func New(cfg Config, st Store, ex Extractor, opts ...Option) *Bot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PhotoDir == "" {
		cfg.PhotoDir = filepath.Join("uploads", "photos")
	}
	if cfg.MaxWeight <= 0 {
		cfg.MinWeight, cfg.MaxWeight = weight.DefaultConfig().MinWeight, weight.DefaultConfig().MaxWeight
	}
	b := &Bot{cfg: cfg, store: st, extractor: ex, fetcher: NewHTTPFetcher(), now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle processes one message and returns the reply for the sender.
// Messages of the same chat are handled one at a time.
func (b *Bot) Handle(ctx context.Context, msg Message) string {
	mu, _ := b.locks.LoadOrStore(msg.ChatID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	reply, err := b.handle(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("chat_id", msg.ChatID).Msg("dialog: handle failed")
		return msgInternalError
	}
	return reply
}

func (b *Bot) handle(ctx context.Context, msg Message) (string, error) {
	chat := msg.ChatID
	state, d, err := b.loadState(ctx, chat)
	if err != nil {
		return "", err
	}

	if msg.isPhoto() {
		if state == StateAwaitingPhoto || state == StateManualWeight {
			return b.photo(ctx, chat, msg, d)
		}
		return msgPhotoNotNeeded, nil
	}

	text := strings.TrimSpace(msg.Text)
	cmd := strings.ToLower(text)
	switch cmd {
	case "0", "меню":
		return b.mainMenu(ctx, chat)
	case "3", "регистрация":
		return b.startRegistration(ctx, chat)
	}

	switch state {
	case StateRegistrationName:
		return b.registrationName(ctx, chat, text)
	case StateRegistrationPhone:
		return b.registrationPhone(ctx, chat, text, d)
	case StateRegistrationTruck:
		return b.registrationTruck(ctx, chat, text, d)
	}

	driver, err := b.store.Driver(ctx, chat)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if driver == nil || !driver.IsRegistered {
		return b.startRegistration(ctx, chat)
	}

	switch cmd {
	case "1":
		return b.newReport(ctx, chat, driver)
	case "2":
		return msgEnterNewTruck, b.setState(ctx, chat, StateChangingTruck, draft{})
	case "4":
		return b.history(ctx, chat)
	case "5":
		return msgEnterStatsTruck, b.setState(ctx, chat, StateStatsTruck, draft{})
	}

	switch state {
	case StateChangingTruck:
		return b.changeTruck(ctx, chat, text)
	case StateAwaitingClient:
		return b.clientName(ctx, chat, text, d)
	case StateAwaitingPhoto:
		return msgPhotoExpected, nil
	case StateManualWeight:
		return b.manualWeight(ctx, chat, text, d)
	case StateConfirmation:
		return b.confirm(ctx, chat, text, d, driver)
	case StateStatsTruck:
		return b.vehicleStats(ctx, chat, text)
	}
	return msgUnknownCommand, nil
}

func (b *Bot) mainMenu(ctx context.Context, chat string) (string, error) {
	if err := b.store.ClearState(ctx, chat); err != nil {
		return "", err
	}
	driver, err := b.store.Driver(ctx, chat)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !driver.IsRegistered) {
		return msgNotRegistered, nil
	}
	if err != nil {
		return "", err
	}
	return msgMenu, nil
}

func (b *Bot) startRegistration(ctx context.Context, chat string) (string, error) {
	return msgRegistrationStart, b.setState(ctx, chat, StateRegistrationName, draft{})
}

func (b *Bot) registrationName(ctx context.Context, chat, text string) (string, error) {
	if len([]rune(text)) < 3 {
		return msgNameTooShort, nil
	}
	return namePrompt(text), b.setState(ctx, chat, StateRegistrationPhone, draft{FullName: text})
}

func (b *Bot) registrationPhone(ctx context.Context, chat, text string, d draft) (string, error) {
	phone := digitsOnly(text)
	if len(phone) < 6 {
		return msgBadPhone, nil
	}
	d.PersonalPhone = phone
	return msgEnterTruck, b.setState(ctx, chat, StateRegistrationTruck, d)
}

func (b *Bot) registrationTruck(ctx context.Context, chat, text string, d draft) (string, error) {
	truck := strings.ToUpper(text)
	if len([]rune(truck)) < 3 {
		return msgBadTruck, nil
	}
	name := d.FullName
	if name == "" {
		name = "?"
	}
	driver, err := b.store.RegisterDriver(ctx, chat, name, d.PersonalPhone, truck)
	if err != nil {
		return "", fmt.Errorf("register driver: %w", err)
	}
	log.Info().Str("chat_id", chat).Str("truck", driver.TruckNumber).Msg("dialog: driver registered")
	return registrationDone(driver), b.store.ClearState(ctx, chat)
}

func (b *Bot) changeTruck(ctx context.Context, chat, text string) (string, error) {
	truck := strings.ToUpper(text)
	if len([]rune(truck)) < 3 {
		return msgBadTruck, nil
	}
	if err := b.store.UpdateTruck(ctx, chat, truck); err != nil {
		return "", fmt.Errorf("update truck: %w", err)
	}
	return truckChanged(truck), b.store.ClearState(ctx, chat)
}

func (b *Bot) newReport(ctx context.Context, chat string, driver *models.Driver) (string, error) {
	if driver.TruckNumber == "" {
		return msgNoTruck, nil
	}
	d := draft{
		TruckNumber: driver.TruckNumber,
		DriverName:  driver.FullName,
		DriverPhone: driver.PersonalPhone,
	}
	return msgEnterClient, b.setState(ctx, chat, StateAwaitingClient, d)
}

func (b *Bot) clientName(ctx context.Context, chat, text string, d draft) (string, error) {
	if len([]rune(text)) < 2 {
		return msgClientTooShort, nil
	}
	d.ClientName = text
	return msgSendPhoto, b.setState(ctx, chat, StateAwaitingPhoto, d)
}

func (b *Bot) photo(ctx context.Context, chat string, msg Message, d draft) (string, error) {
	if msg.PhotoURL == "" {
		return msgPhotoMissing, nil
	}
	name := fmt.Sprintf("%s_%s.jpg", fileSafe(chat), b.now().Format("20060102_150405"))
	path := filepath.Join(b.cfg.PhotoDir, name)
	if err := os.MkdirAll(b.cfg.PhotoDir, 0o755); err != nil {
		return "", fmt.Errorf("photo dir: %w", err)
	}
	if err := b.fetcher.Fetch(ctx, msg.PhotoURL, path); err != nil {
		log.Warn().Err(err).Str("chat_id", chat).Msg("dialog: photo download failed")
		return msgDownloadFailed, nil
	}
	d.PhotoPath, d.PhotoURL = path, msg.PhotoURL

	res := b.extractor.Extract(ctx, path)
	if !res.Found {
		log.Info().Str("chat_id", chat).Str("req_id", res.Diagnostics.RequestID).Msg("dialog: weight not recognized")
		return res.Status + msgRetryOptions, b.setState(ctx, chat, StateManualWeight, d)
	}
	d.Manual = false
	d.Method = res.Diagnostics.Method
	return b.askConfirmation(ctx, chat, d, res.Weight)
}

func (b *Bot) manualWeight(ctx context.Context, chat, text string, d draft) (string, error) {
	var kept strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			kept.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(kept.String(), 64)
	if err != nil {
		return msgNotANumber, nil
	}
	if v < float64(b.cfg.MinWeight) {
		return weightOutOfRange(true, b.cfg.MinWeight, b.cfg.MaxWeight), nil
	}
	if v > float64(b.cfg.MaxWeight) {
		return weightOutOfRange(false, b.cfg.MinWeight, b.cfg.MaxWeight), nil
	}
	d.Manual = true
	d.Method = "manual"
	return b.askConfirmation(ctx, chat, d, v)
}

func (b *Bot) askConfirmation(ctx context.Context, chat string, d draft, w float64) (string, error) {
	prev, err := b.store.LastWeight(ctx, d.TruckNumber)
	if err != nil {
		return "", fmt.Errorf("last weight: %w", err)
	}
	d.CurrentWeight, d.PreviousWeight = w, prev
	if err := b.setState(ctx, chat, StateConfirmation, d); err != nil {
		return "", err
	}
	return confirmation(d, b.now().In(b.cfg.Location)), nil
}

func (b *Bot) confirm(ctx context.Context, chat, text string, d draft, driver *models.Driver) (string, error) {
	switch strings.ToLower(text) {
	case "нет", "no", "н", "n":
		return msgReportCancelled, b.store.ClearState(ctx, chat)
	case "да", "yes", "д", "y":
	default:
		return msgConfirmHint, nil
	}

	w := &models.Weighing{
		DriverChatID:  chat,
		TruckNumber:   d.TruckNumber,
		DriverName:    driver.FullName,
		ClientName:    d.ClientName,
		CurrentWeight: d.CurrentWeight,
		PhotoPath:     d.PhotoPath,
		ManualInput:   d.Manual,
		OCRMethod:     d.Method,
		CreatedAt:     b.now().UTC(),
	}
	if err := b.store.SaveWeighing(ctx, w); err != nil {
		log.Error().Err(err).Str("chat_id", chat).Msg("dialog: save weighing failed")
		return msgSaveFailed, nil
	}
	log.Info().Str("chat_id", chat).Str("truck", w.TruckNumber).Float64("weight", w.CurrentWeight).
		Float64("difference", w.WeightDifference).Msg("dialog: weighing saved")

	b.report(ctx, w, d)
	return msgReportSaved, b.store.ClearState(ctx, chat)
}

// report posts the weighing to the group. Failures are logged only.
func (b *Bot) report(ctx context.Context, w *models.Weighing, d draft) {
	if b.reporter == nil {
		log.Warn().Msg("dialog: no group configured, report not sent")
		return
	}
	phone := d.DriverPhone
	text := groupReport(w, phone, w.CreatedAt.In(b.cfg.Location))
	if err := b.reporter.Report(ctx, text, d.PhotoURL); err != nil {
		log.Error().Err(err).Str("truck", w.TruckNumber).Msg("dialog: group report failed")
	}
}

func (b *Bot) history(ctx context.Context, chat string) (string, error) {
	items, err := b.store.DriverHistory(ctx, chat, historyLimit)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return msgNoHistory, nil
	}
	return historyText(items, b.cfg.Location), nil
}

func (b *Bot) vehicleStats(ctx context.Context, chat, text string) (string, error) {
	truck := strings.ToUpper(text)
	if err := b.store.ClearState(ctx, chat); err != nil {
		return "", err
	}
	v, err := b.store.Vehicle(ctx, truck)
	if errors.Is(err, store.ErrNotFound) {
		return vehicleNotFound(truck), nil
	}
	if err != nil {
		return "", err
	}
	items, err := b.store.VehicleHistory(ctx, truck, historyLimit)
	if err != nil {
		return "", err
	}
	return statsText(v, items, b.cfg.Location), nil
}

func (b *Bot) loadState(ctx context.Context, chat string) (string, draft, error) {
	var d draft
	st, err := b.store.State(ctx, chat)
	if errors.Is(err, store.ErrNotFound) {
		return "", d, nil
	}
	if err != nil {
		return "", d, err
	}
	if st.Data != "" {
		if err := json.Unmarshal([]byte(st.Data), &d); err != nil {
			log.Warn().Err(err).Str("chat_id", chat).Msg("dialog: corrupt draft dropped")
			d = draft{}
		}
	}
	return st.State, d, nil
}

func (b *Bot) setState(ctx context.Context, chat, state string, d draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.store.SetState(ctx, chat, state, string(data))
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// fileSafe keeps the local part of a chat id ("79001234567@c.us" -> "79001234567").
func fileSafe(chat string) string {
	if i := strings.IndexByte(chat, '@'); i >= 0 {
		chat = chat[:i]
	}
	var sb strings.Builder
	for _, r := range chat {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "chat"
	}
	return sb.String()
}
