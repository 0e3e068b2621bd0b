package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/player"
	"github.com/desertthunder/findtune/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SearchView ViewState = iota
	PlayerView
)

const (
	defaultVolume = 50
	volumeStep    = 10
)

// Library searches tracks and saves liked tracks to a playlist.
type Library interface {
	Search(ctx context.Context, query string) ([]models.Track, error)
	SaveLiked(ctx context.Context, name string, tracks []models.Track) (*models.Playlist, error)
}

// Options configures a [Model].
type Options struct {
	Player   *player.Orchestrator
	Library  Library
	Playlist string // name of the playlist liked songs are saved to
	Logger   *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	player   *player.Orchestrator
	library  Library
	playlist string
	logger   *log.Logger
	width    int
	height   int
	input    textinput.Model
	results  list.Model
	tracks   []models.Track
	volume   int
	status   player.Update
	notice   string
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Playlist == "" {
		opts.Playlist = "Findtune"
	}

	input := textinput.New()
	input.Placeholder = "Search for a song"
	input.CharLimit = 100
	input.Prompt = "/ "

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Search Results"
	results.SetFilteringEnabled(false)
	results.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		view:     SearchView,
		player:   opts.Player,
		library:  opts.Library,
		playlist: opts.Playlist,
		logger:   shared.WithLogger(opts.Logger, "component", "tui"),
		input:    input,
		results:  results,
		volume:   defaultVolume,
		status:   player.Update{State: opts.Player.State()},
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts listening for player updates.
func (m *Model) Init() tea.Cmd {
	return m.waitForUpdate()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.results.SetSize(msg.Width-4, max(msg.Height-14, 4))
		return m, nil

	case tea.KeyMsg:
		if m.input.Focused() {
			return m.handleInputKeys(msg)
		}
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		case PlayerView:
			return m.handlePlayerKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case SearchView:
		body = m.renderSearch()
	case PlayerView:
		body = m.renderPlayer()
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("findtune"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")
	b.WriteString(body)
	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.warn.Render(m.notice))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSearchResults:
		res := msg.data.(searchResults)
		if res.err != nil {
			m.notice = player.Notice(res.err)
			return m, nil
		}
		m.tracks = res.tracks
		m.results.Title = fmt.Sprintf("Results for %q", res.query)
		m.refreshResults()
		if len(res.tracks) == 0 {
			m.notice = "No songs found."
		}
		return m, nil

	case MsgPlayerUpdate:
		u := msg.data.(player.Update)
		m.status = u
		if u.Notice != "" {
			m.notice = u.Notice
		}
		return m, m.waitForUpdate()

	case MsgCommandDone:
		if err, _ := msg.data.(error); err != nil && !errors.Is(err, context.Canceled) {
			m.notice = player.Notice(err)
		}
		return m, nil

	case MsgLikedSaved:
		res := msg.data.(likedSaved)
		if res.err != nil {
			m.notice = player.Notice(res.err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Saved %d songs to %s.", res.count, res.playlist.Name)
		return m, nil
	}
	return m, nil
}

func (m *Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.input.Blur()
		return m, m.search(query)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.tab):
		m.view = PlayerView
		return m, nil
	case key.Matches(msg, m.keys.search):
		m.notice = ""
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			m.addSeed(item.track)
		}
		return m, nil
	case key.Matches(msg, m.keys.remove):
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			m.player.Seeds().Remove(item.track.ID)
			m.refreshResults()
		}
		return m, nil
	case key.Matches(msg, m.keys.clear):
		m.player.Seeds().Clear()
		m.refreshResults()
		return m, nil
	case key.Matches(msg, m.keys.start):
		m.view = PlayerView
		return m, m.run(m.player.Start)
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) handlePlayerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.tab), key.Matches(msg, m.keys.back):
		m.view = SearchView
		return m, nil
	case key.Matches(msg, m.keys.search):
		m.view = SearchView
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.start):
		return m, m.run(m.player.Start)
	case key.Matches(msg, m.keys.toggle):
		return m, m.run(m.player.Toggle)
	case key.Matches(msg, m.keys.skip):
		return m, m.run(m.player.Skip)
	case key.Matches(msg, m.keys.like):
		return m, m.run(func(ctx context.Context) error {
			_, err := m.player.Like(ctx)
			return err
		})
	case key.Matches(msg, m.keys.unlike):
		if !m.player.Unlike() {
			m.notice = "Current song is not liked."
		}
		return m, nil
	case key.Matches(msg, m.keys.louder):
		m.setVolume(m.volume + volumeStep)
		return m, nil
	case key.Matches(msg, m.keys.quieter):
		m.setVolume(m.volume - volumeStep)
		return m, nil
	case key.Matches(msg, m.keys.auto):
		on := !m.player.AutoAdvance()
		m.player.SetAutoAdvance(on)
		m.notice = fmt.Sprintf("Skip on like %s.", onOff(on))
		return m, nil
	case key.Matches(msg, m.keys.save):
		return m, m.saveLiked()
	}
	return m, nil
}

func (m *Model) addSeed(t models.Track) {
	if err := m.player.Seeds().Add(t); err != nil {
		m.notice = player.Notice(err)
		return
	}
	m.notice = fmt.Sprintf("Added %s (%d/%d).", t.Name, m.player.Seeds().Len(), shared.MaxSeeds)
	m.refreshResults()
}

func (m *Model) refreshResults() {
	index := m.results.Index()
	m.results.SetItems(trackItems(m.tracks, m.player.Seeds().IDs()))
	if index < len(m.tracks) {
		m.results.Select(index)
	}
}

// setVolume clamps percent and hands it to the player, which sends only the last value of a burst.
func (m *Model) setVolume(percent int) {
	percent = min(max(percent, 0), 100)
	if err := m.player.SetVolume(percent); err != nil {
		m.notice = player.Notice(err)
		return
	}
	m.volume = percent
}

// run executes a playback command off the UI goroutine.
func (m *Model) run(f func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg(f(m.ctx))
	}
}

func (m *Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.library.Search(m.ctx, query)
		if err != nil {
			m.logger.Warn("search failed", "query", query, "error", err)
		}
		return searchResultsMsg(query, tracks, err)
	}
}

func (m *Model) saveLiked() tea.Cmd {
	tracks := m.player.Liked().Tracks()
	if len(tracks) == 0 {
		m.notice = "Like a song before saving."
		return nil
	}
	return func() tea.Msg {
		playlist, err := m.library.SaveLiked(m.ctx, m.playlist, tracks)
		return likedSavedMsg(playlist, len(tracks), err)
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.player.Updates():
			return playerUpdateMsg(u)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) renderStatus() string {
	state := m.status.State.String()
	switch m.status.State {
	case player.Playing:
		state = styles.ok.Render(state)
	case player.Awaiting:
		state = styles.warn.Render(state)
	}

	device := m.status.Device
	if device == "" {
		device = styles.err.Render("no device")
	}

	return fmt.Sprintf("%s • device %s • volume %d%% • skip on like %s",
		state, device, m.volume, onOff(m.player.AutoAdvance()))
}

func (m *Model) renderSearch() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if len(m.tracks) == 0 {
		b.WriteString(styles.help.Render("Press / to search, then enter to add up to 5 seed songs."))
	} else {
		b.WriteString(m.results.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderSeeds())
	return b.String()
}

func (m *Model) renderPlayer() string {
	var now string
	if t := m.status.Track; t != nil {
		liked := ""
		if m.player.Liked().Contains(t.ID) {
			liked = styles.ok.Render(" ♥")
		}
		now = fmt.Sprintf("%s%s\n%s", styles.ok.Render(t.Name), liked, t.Artist())
	} else {
		now = styles.help.Render("Nothing playing. Press s to start.")
	}

	liked := m.player.Liked().Tracks()
	lines := make([]string, 0, len(liked)+1)
	lines = append(lines, fmt.Sprintf("Liked (%d)", len(liked)))
	for _, t := range liked {
		lines = append(lines, fmt.Sprintf("  ♥ %s - %s", t.Name, t.Artist()))
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", styles.box.Render(now), m.renderSeeds(), strings.Join(lines, "\n"))
}

func (m *Model) renderSeeds() string {
	seeds := m.player.Seeds().Tracks()
	lines := make([]string, 0, len(seeds)+1)
	lines = append(lines, fmt.Sprintf("Seeds (%d/%d)", len(seeds), shared.MaxSeeds))
	for _, t := range seeds {
		lines = append(lines, fmt.Sprintf("  ● %s - %s", t.Name, t.Artist()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHelp() string {
	if m.input.Focused() {
		search := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search"))
		return m.help.ShortHelpView([]key.Binding{search, m.keys.back})
	}

	switch m.view {
	case SearchView:
		return m.help.ShortHelpView([]key.Binding{
			m.keys.search, m.keys.enter, m.keys.remove, m.keys.clear, m.keys.start, m.keys.tab, m.keys.quit,
		})
	default:
		return m.help.ShortHelpView([]key.Binding{
			m.keys.start, m.keys.toggle, m.keys.skip, m.keys.like, m.keys.unlike, m.keys.louder, m.keys.quieter,
			m.keys.auto, m.keys.save, m.keys.tab, m.keys.quit,
		})
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
