package usecase_room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deckset/planningpoker/core/internal/model"
	"github.com/deckset/planningpoker/core/internal/roomstate"
	roomview "github.com/deckset/planningpoker/core/internal/view/room"
)

var (
	ErrCreate         = errors.New("failed to create room")
	ErrRoomNotFound   = errors.New("room not found")
	ErrValidation     = errors.New("invalid input")
	ErrNotAllowed     = errors.New("not allowed")
	ErrNameTaken      = errors.New("name already taken")
	ErrChoiceExists   = errors.New("choice already exists")
	ErrChoiceNotFound = errors.New("choice not found")
	ErrAdminRemoval   = errors.New("the admin cannot be removed")
	ErrStorage        = errors.New("storage failure")
	ErrChannel        = errors.New("channel failure")
)

// PersistentStorage is the room-state contract of §4.2: get/set of the whole
// aggregate plus a targeted single-field write for the submit-choice hot path.
// Get returns nil, nil for an absent room; only genuine I/O fails.
type PersistentStorage interface {
	Get(ctx context.Context, roomID model.RoomID) (*model.RoomState, error)
	Set(ctx context.Context, roomID model.RoomID, state *model.RoomState) (*model.RoomState, error)
	PersistChoice(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, choice *model.Choice) (*model.RoomState, error)
}

// Broadcaster fans events out to the room channel and answers "who is here
// right now". Presence is ground truth for liveness; the stored user map is
// only what we last knew about an identity's preferences.
type Broadcaster interface {
	Publish(ctx context.Context, roomID model.RoomID, event string, payload any) error
	PresentDeviceIDs(ctx context.Context, roomID model.RoomID) ([]model.DeviceID, error)
}

// Event names consumed by subscribed clients. Deltas may be delivered more
// than once; clients apply them idempotently.
const (
	EventRoomUpdate              = "room-update"
	EventUserAdd                 = "user:add"
	EventUserRemove              = "user:remove"
	EventUserSetName             = "user:set-name"
	EventUserUpdateChoice        = "user:update-choice"
	EventUserUpdateParticipation = "user:update-participation"
	EventUserUpdateCardBack      = "user:update-card-back"
	EventRoomReveal              = "room:reveal"
	EventRoomClear               = "room:clear"
	EventRoomSetAdmin            = "room:set-admin"
	EventRoomAllowUnknown        = "room:update-allow-unknown"
	EventRoomAllowSnooping       = "room:update-allow-snooping"
	EventRoomSelectableNumbers   = "room:update-selectable-numbers"
	EventShowConfetti            = "show-confetti"
)

type Usecase struct {
	storage PersistentStorage
	channel Broadcaster
	logger  *slog.Logger
}

type UsecaseOption func(*Usecase)

func WithLogger(logger *slog.Logger) UsecaseOption {
	return func(u *Usecase) {
		u.logger = logger
	}
}

func New(storage PersistentStorage, channel Broadcaster, opts ...UsecaseOption) *Usecase {
	u := &Usecase{
		storage: storage,
		channel: channel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type CreateConfig struct {
	ID      *model.RoomID
	Choices []int
}

// Create allocates a fresh room and persists it immediately.
func (u *Usecase) Create(ctx context.Context, cfg CreateConfig, adminDeviceID *model.DeviceID) (*roomstate.Room, error) {
	roomID := model.NewRoomID()
	if cfg.ID != nil {
		roomID = *cfg.ID
	}
	if len(cfg.Choices) > 0 {
		if err := validateChoiceSet(cfg.Choices); err != nil {
			return nil, err
		}
	}

	room := roomstate.NewDefault(roomID, cfg.Choices, adminDeviceID)
	if err := u.save(ctx, room); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	return room, nil
}

// Get loads a room, returning nil (not an error) when it does not exist.
// Callers translate absence into a user-facing not-found.
func (u *Usecase) Get(ctx context.Context, roomID model.RoomID) (*roomstate.Room, error) {
	state, err := u.storage.Get(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if state == nil {
		return nil, nil
	}
	return roomstate.New(roomID, state), nil
}

// Enter is the room-access path: lazy join, remembered-name re-claim and
// admin election, persisted and broadcast only when something changed.
//
// Admin self-heals: with no stored admin, or with at most one device
// observable on the presence channel, the accessing device takes over.
func (u *Usecase) Enter(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, rememberedName string) (*roomstate.Room, []model.DeviceID, error) {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	present := u.presentOrNone(ctx, roomID)

	user, joined := room.JoinOrGet(deviceID)
	if rememberedName != "" && user.Name == "" {
		if _, taken := room.DeviceIDFromName(rememberedName); !taken {
			room.SetName(deviceID, rememberedName)
		}
	}

	if room.State.AdminDeviceID == nil || len(present) <= 1 {
		room.SetAdmin(deviceID)
	}

	if room.IsModified() {
		if err := u.save(ctx, room); err != nil {
			return nil, nil, err
		}
		if joined {
			u.publishAsync(roomID, EventUserAdd, map[string]any{"user": user})
		}
		u.publishAsync(roomID, EventRoomUpdate, room.State)
	}

	return room, present, nil
}

// SetName claims a display name for the calling device. Devices no longer
// present are pruned first so stale identities free their names for reuse.
func (u *Usecase) SetName(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}

	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}

	present, err := u.channel.PresentDeviceIDs(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	removed := room.RemoveUsersNotIn(present)

	if owner, taken := room.DeviceIDFromName(name); taken && owner != deviceID {
		return ErrNameTaken
	}

	room.SetName(deviceID, name)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	for _, gone := range removed {
		u.publishAsync(roomID, EventUserRemove, map[string]any{"deviceId": gone})
	}
	u.publishAsync(roomID, EventUserSetName, map[string]any{"deviceId": deviceID, "name": name})
	return nil
}

// SubmitChoice is the highest-frequency write. It validates against the
// room's config, then writes only the choice field at the storage layer so a
// concurrent full-state write cannot clobber it with a stale copy.
func (u *Usecase) SubmitChoice(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, choice *model.Choice) (*model.RoomState, error) {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if choice != nil {
		if choice.Unknown {
			if !room.State.Config.AllowUnknown {
				return nil, fmt.Errorf("%w: unknown pick is not allowed", ErrValidation)
			}
		} else if !containsChoice(room.State.Config.SelectableNumbers, choice.Number) {
			return nil, fmt.Errorf("%w: %d is not selectable", ErrValidation, choice.Number)
		}
	}

	// The fast path only updates an existing user entry; first pick from a
	// device that never entered the room has to join through the full write.
	if room.GetUserFromDeviceID(deviceID) == nil {
		user, _ := room.JoinOrGet(deviceID)
		if err := u.save(ctx, room); err != nil {
			return nil, err
		}
		u.publishAsync(roomID, EventUserAdd, map[string]any{"user": user})
	}

	state, err := u.storage.PersistChoice(ctx, roomID, deviceID, choice)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	u.publishAsync(roomID, EventUserUpdateChoice, map[string]any{"deviceId": deviceID, "choice": choice})
	return state, nil
}

// Reveal is a one-way transition until the next clear: re-revealing is a
// no-op so repeated requests cannot re-fire confetti. Returns whether the
// revealed picks reached unanimous participant consensus.
func (u *Usecase) Reveal(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID) (bool, error) {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsAdmin(deviceID) {
		return false, ErrNotAllowed
	}
	if room.State.ShowResults {
		return false, nil
	}

	room.InvertShowResults()
	if err := u.save(ctx, room); err != nil {
		return false, err
	}

	present := u.presentOrNone(ctx, roomID)
	projection := roomview.Project(room.State, present, deviceID)

	u.publishAsync(roomID, EventRoomReveal, map[string]any{"showResults": true})
	u.publishAsync(roomID, EventRoomUpdate, room.State)
	if projection.ConsensusAchieved {
		u.publishAsync(roomID, EventShowConfetti, map[string]any{})
	}
	return projection.ConsensusAchieved, nil
}

// Clear nulls every pick and hides results.
func (u *Usecase) Clear(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}

	room.ClearChoices()
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventRoomClear, map[string]any{})
	u.publishAsync(roomID, EventRoomUpdate, room.State)
	return nil
}

func (u *Usecase) SetAdmin(ctx context.Context, roomID model.RoomID, callerID, targetID model.DeviceID) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(callerID) {
		return ErrNotAllowed
	}

	room.SetAdmin(targetID)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventRoomSetAdmin, map[string]any{"adminDeviceId": targetID})
	return nil
}

// ClaimAdmin honors a claim only when no admin is set or the current admin
// is no longer on the presence channel (abandoned admin).
func (u *Usecase) ClaimAdmin(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}

	if room.State.AdminDeviceID != nil {
		present, err := u.channel.PresentDeviceIDs(ctx, roomID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrChannel, err)
		}
		adminPresent := false
		for _, id := range present {
			if id == *room.State.AdminDeviceID {
				adminPresent = true
				break
			}
		}
		if adminPresent {
			return ErrNotAllowed
		}
	}

	room.SetAdmin(deviceID)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventRoomSetAdmin, map[string]any{"adminDeviceId": deviceID})
	return nil
}

func (u *Usecase) RemoveUser(ctx context.Context, roomID model.RoomID, callerID, targetID model.DeviceID) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(callerID) {
		return ErrNotAllowed
	}
	if room.IsAdmin(targetID) {
		return ErrAdminRemoval
	}

	room.RemoveUser(targetID)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventUserRemove, map[string]any{"deviceId": targetID})
	return nil
}

// SetParticipation flips or sets a user's participant flag. The admin may
// change anyone; a device may always change itself. A nil participant means
// invert. The user's existing pick is kept either way.
func (u *Usecase) SetParticipation(ctx context.Context, roomID model.RoomID, callerID, targetID model.DeviceID, participant *bool) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(callerID) && callerID != targetID {
		return ErrNotAllowed
	}

	if participant == nil {
		room.InvertParticipation(targetID)
	} else {
		room.SetParticipation(targetID, *participant)
	}
	if err := u.save(ctx, room); err != nil {
		return err
	}

	user := room.GetUserFromDeviceID(targetID)
	u.publishAsync(roomID, EventUserUpdateParticipation, map[string]any{
		"deviceId":      targetID,
		"isParticipant": user.IsParticipant,
	})
	return nil
}

func (u *Usecase) AddChoice(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, n int) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}
	if n <= 0 {
		return fmt.Errorf("%w: choices must be positive", ErrValidation)
	}
	if containsChoice(room.State.Config.SelectableNumbers, n) {
		return ErrChoiceExists
	}

	return u.applyChoiceSet(ctx, room, append(room.State.Config.SelectableNumbers, n))
}

func (u *Usecase) RemoveChoice(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, n int) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}
	if !containsChoice(room.State.Config.SelectableNumbers, n) {
		return ErrChoiceNotFound
	}

	remaining := make([]int, 0, len(room.State.Config.SelectableNumbers)-1)
	for _, c := range room.State.Config.SelectableNumbers {
		if c != n {
			remaining = append(remaining, c)
		}
	}
	// The same floor every other deck mutation enforces.
	if err := validateChoiceSet(remaining); err != nil {
		return err
	}
	return u.applyChoiceSet(ctx, room, remaining)
}

func (u *Usecase) SetChoices(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, choices []int) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}
	if err := validateChoiceSet(choices); err != nil {
		return err
	}

	return u.applyChoiceSet(ctx, room, choices)
}

func (u *Usecase) SetAllowUnknown(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, allow bool) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}

	if room.State.Config.AllowUnknown != allow {
		room.InvertAllowUnknown()
	}
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventRoomAllowUnknown, map[string]any{"allowUnknown": allow})
	u.publishAsync(roomID, EventRoomUpdate, room.State)
	return nil
}

func (u *Usecase) SetAllowSnooping(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, allow bool) error {
	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsAdmin(deviceID) {
		return ErrNotAllowed
	}

	if room.State.Config.AllowObserversToSnoop != allow {
		room.InvertAllowSnooping()
	}
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventRoomAllowSnooping, map[string]any{"allowObserversToSnoop": allow})
	return nil
}

func (u *Usecase) SetCardBack(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, cardBack model.CardBack) error {
	if !model.ValidCardBack(cardBack) {
		return fmt.Errorf("%w: unknown card back %q", ErrValidation, cardBack)
	}

	room, err := u.load(ctx, roomID)
	if err != nil {
		return err
	}

	room.SetCardBack(deviceID, cardBack)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(roomID, EventUserUpdateCardBack, map[string]any{"deviceId": deviceID, "cardBack": cardBack})
	return nil
}

func (u *Usecase) load(ctx context.Context, roomID model.RoomID) (*roomstate.Room, error) {
	room, err := u.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// save persists only when the state diverged from its load-time snapshot.
// Durable stores return the post-write row, which becomes the new snapshot.
func (u *Usecase) save(ctx context.Context, room *roomstate.Room) error {
	if !room.IsModified() {
		return nil
	}
	stored, err := u.storage.Set(ctx, room.ID, room.State)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if stored != nil {
		room.State = stored
	}
	room.MarkSaved()
	return nil
}

func (u *Usecase) applyChoiceSet(ctx context.Context, room *roomstate.Room, choices []int) error {
	room.UpdateSelectableNumbers(choices)
	if err := u.save(ctx, room); err != nil {
		return err
	}

	u.publishAsync(room.ID, EventRoomSelectableNumbers, map[string]any{
		"selectableNumbers": room.State.Config.SelectableNumbers,
	})
	u.publishAsync(room.ID, EventRoomUpdate, room.State)
	return nil
}

// publishAsync is fire-and-forget: broadcast latency must not extend the
// response, and delivery failures are logged, never surfaced.
func (u *Usecase) publishAsync(roomID model.RoomID, event string, payload any) {
	go func() {
		if err := u.channel.Publish(context.Background(), roomID, event, payload); err != nil {
			u.logger.Error("failed to publish room event",
				slog.String("room_id", roomID),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// presentOrNone degrades a failed presence query to "nobody observable" so
// room access keeps working (and admin self-healing still triggers).
func (u *Usecase) presentOrNone(ctx context.Context, roomID model.RoomID) []model.DeviceID {
	present, err := u.channel.PresentDeviceIDs(ctx, roomID)
	if err != nil {
		u.logger.Error("failed to query presence",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return present
}

func containsChoice(choices []int, n int) bool {
	for _, c := range choices {
		if c == n {
			return true
		}
	}
	return false
}

func validateChoiceSet(choices []int) error {
	if len(choices) < 2 {
		return fmt.Errorf("%w: at least two choices are required", ErrValidation)
	}
	for _, c := range choices {
		if c <= 0 {
			return fmt.Errorf("%w: choices must be positive", ErrValidation)
		}
	}
	return nil
}
