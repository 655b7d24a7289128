//go:build linux

package vdesktop

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// KWin D-Bus constants
const (
	kwinBusName                    = "org.kde.KWin"
	virtualDesktopManagerPath      = "/VirtualDesktopManager"
	virtualDesktopManagerInterface = "org.kde.KWin.VirtualDesktopManager"
)

type kwinDesktop struct {
	raw  string
	id   uuid.UUID
	name string
}

// kwinService reads virtual desktops from KWin's VirtualDesktopManager.
type kwinService struct {
	windows WindowDesktops

	mu   sync.Mutex
	conn *dbus.Conn
}

var (
	_ Service        = (*kwinService)(nil)
	_ ChangeNotifier = (*kwinService)(nil)
)

func newKWinService(windows WindowDesktops) (*kwinService, error) {
	s := &kwinService{windows: windows}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *kwinService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn.Connected() {
		return nil
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("%w: session bus: %v", ErrServerUnavailable, err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return fmt.Errorf("failed to list D-Bus names: %w", err)
	}
	found := false
	for _, name := range names {
		if name == kwinBusName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return fmt.Errorf("%w: KWin service not found on D-Bus", ErrNotSupported)
	}

	s.conn = conn
	logger.WithComponent("kwin").Info().Msg("Connected to KWin D-Bus service")
	return nil
}

func (s *kwinService) object() (dbus.BusObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.conn.Connected() {
		return nil, ErrServerUnavailable
	}
	return s.conn.Object(kwinBusName, virtualDesktopManagerPath), nil
}

// kwinID maps a KWin desktop id onto a UUID. KWin 5 on X11 numbers its
// desktops instead, so non-UUID ids get a stable name-based UUID.
func kwinID(raw string) uuid.UUID {
	if id, err := uuid.Parse(strings.Trim(raw, "{}")); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kwin-desktop:"+raw))
}

// list reads the desktops property, a(uss) of position, id and name.
func (s *kwinService) list() ([]kwinDesktop, error) {
	obj, err := s.object()
	if err != nil {
		return nil, err
	}
	prop, err := obj.GetProperty(virtualDesktopManagerInterface + ".desktops")
	if err != nil {
		return nil, fmt.Errorf("%w: desktops property: %v", ErrCallFailed, err)
	}

	var tuples [][]interface{}
	switch v := prop.Value().(type) {
	case [][]interface{}:
		tuples = v
	case []interface{}:
		for _, e := range v {
			if t, ok := e.([]interface{}); ok {
				tuples = append(tuples, t)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected desktops property type %T", v)
	}

	out := make([]kwinDesktop, 0, len(tuples))
	for _, t := range tuples {
		if len(t) < 2 {
			continue
		}
		raw, ok := t[1].(string)
		if !ok {
			continue
		}
		d := kwinDesktop{raw: raw, id: kwinID(raw)}
		if len(t) >= 3 {
			d.name, _ = t[2].(string)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *kwinService) currentRaw() (string, error) {
	obj, err := s.object()
	if err != nil {
		return "", err
	}
	prop, err := obj.GetProperty(virtualDesktopManagerInterface + ".current")
	if err != nil {
		return "", fmt.Errorf("%w: current property: %v", ErrCallFailed, err)
	}
	raw, ok := prop.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected current property type %T", prop.Value())
	}
	return raw, nil
}

func indexOf(list []kwinDesktop, id uuid.UUID) (int, error) {
	for i, d := range list {
		if d.id == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: desktop %s", ErrElementNotFound, id)
}

func (s *kwinService) CurrentDesktopID() (uuid.UUID, error) {
	raw, err := s.currentRaw()
	if err != nil {
		return uuid.Nil, err
	}
	return kwinID(raw), nil
}

func (s *kwinService) CurrentDesktopIndex() (int, error) {
	id, err := s.CurrentDesktopID()
	if err != nil {
		return 0, err
	}
	list, err := s.list()
	if err != nil {
		return 0, err
	}
	return indexOf(list, id)
}

func (s *kwinService) DesktopCount() (int, error) {
	list, err := s.list()
	return len(list), err
}

func (s *kwinService) Desktops() ([]Descriptor, error) {
	list, err := s.list()
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, len(list))
	for i, d := range list {
		out[i] = Descriptor{ID: d.id}
	}
	return out, nil
}

func (s *kwinService) DesktopByIndex(index int) (Descriptor, error) {
	list, err := s.list()
	if err != nil {
		return Descriptor{}, err
	}
	if index < 0 || index >= len(list) {
		return Descriptor{}, fmt.Errorf("%w: desktop index %d", ErrElementNotFound, index)
	}
	return Descriptor{ID: list[index].id}, nil
}

func (s *kwinService) DesktopIndex(d Descriptor) (int, error) {
	list, err := s.list()
	if err != nil {
		return -1, err
	}
	return indexOf(list, d.ID)
}

func (s *kwinService) DesktopName(d Descriptor) (string, error) {
	list, err := s.list()
	if err != nil {
		return "", err
	}
	i, err := indexOf(list, d.ID)
	if err != nil {
		return "", err
	}
	return list[i].name, nil
}

func (s *kwinService) SwitchToDesktop(d Descriptor) error {
	list, err := s.list()
	if err != nil {
		return err
	}
	i, err := indexOf(list, d.ID)
	if err != nil {
		return err
	}
	obj, err := s.object()
	if err != nil {
		return err
	}
	if err := obj.SetProperty(virtualDesktopManagerInterface+".current", dbus.MakeVariant(list[i].raw)); err != nil {
		return fmt.Errorf("%w: set current desktop: %v", ErrCallFailed, err)
	}
	return nil
}

func (s *kwinService) MoveToDesktop(native.Handle, Descriptor) error {
	return ErrNotSupported
}

func (s *kwinService) windowDesktop(h native.Handle) (int, bool, error) {
	if s.windows == nil {
		return 0, false, ErrNotSupported
	}
	return s.windows.WindowDesktop(h)
}

func (s *kwinService) IsWindowPinned(h native.Handle) (bool, error) {
	_, sticky, err := s.windowDesktop(h)
	return sticky, err
}

func (s *kwinService) IsWindowOnCurrentDesktop(h native.Handle) (bool, error) {
	idx, sticky, err := s.windowDesktop(h)
	if err != nil || sticky {
		return sticky, err
	}
	current, err := s.CurrentDesktopIndex()
	if err != nil {
		return false, err
	}
	return idx == current, nil
}

func (s *kwinService) HasWindow(d Descriptor, h native.Handle) (bool, error) {
	idx, sticky, err := s.windowDesktop(h)
	if err != nil || sticky {
		return sticky, err
	}
	want, err := s.DesktopIndex(d)
	if err != nil {
		return false, err
	}
	return idx == want, nil
}

func (s *kwinService) IsCurrentDesktop(d Descriptor) (bool, error) {
	id, err := s.CurrentDesktopID()
	if err != nil {
		return false, err
	}
	return id == d.ID, nil
}

// NotifyChanges calls fn whenever KWin reports a desktop being switched,
// created or removed.
func (s *kwinService) NotifyChanges(fn func()) (stop func()) {
	log := logger.WithComponent("kwin")

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return func() {}
	}

	members := []string{"currentChanged", "desktopCreated", "desktopRemoved", "rowsChanged"}
	for _, member := range members {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(virtualDesktopManagerInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			log.Warn().Err(err).Str("member", member).Msg("Failed to add match for VirtualDesktopManager signal")
		}
	}

	signalChan := make(chan *dbus.Signal, 10)
	conn.Signal(signalChan)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				conn.RemoveSignal(signalChan)
				return
			case sig, ok := <-signalChan:
				if !ok {
					return
				}
				if sig == nil || !strings.HasPrefix(sig.Name, virtualDesktopManagerInterface+".") {
					continue
				}
				log.Debug().Str("signal", sig.Name).Msg("Virtual desktop signal")
				fn()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
