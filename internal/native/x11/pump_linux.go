//go:build linux

package x11

import (
	"context"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// atoms interned once per pump.
type atoms struct {
	activeWindow, clientList, currentDesktop, workarea xproto.Atom
	wmName, netWmName, netWmState, wmState, wmDesktop  xproto.Atom
}

func (s *X11) internAtoms() (atoms, error) {
	var a atoms
	for _, e := range []struct {
		name string
		dst  *xproto.Atom
	}{
		{netActiveWindow, &a.activeWindow},
		{netClientList, &a.clientList},
		{netCurrentDesktop, &a.currentDesktop},
		{netWorkarea, &a.workarea},
		{wmName, &a.wmName},
		{netWmName, &a.netWmName},
		{netWmState, &a.netWmState},
		{wmState, &a.wmState},
		{netWmDesktop, &a.wmDesktop},
	} {
		atom, err := xprop.Atm(s.xu, e.name)
		if err != nil {
			return a, err
		}
		*e.dst = atom
	}
	return a, nil
}

// pump translates X events into WinEvents for one Pump call.
type pump struct {
	s       *X11
	cfg     native.PumpConfig
	sink    native.Sink
	atoms   atoms
	clients map[native.Handle]bool
}

func (p *pump) emit(event uint32, h native.Handle) {
	if event < p.cfg.EventMin || event > p.cfg.EventMax {
		return
	}
	p.sink.WinEvent(native.WinEvent{
		Event:    event,
		Hwnd:     h,
		ObjectID: native.OBJID_WINDOW,
		ChildID:  native.CHILDID_SELF,
		Time:     uint32(time.Now().UnixMilli()),
	})
}

// watch subscribes to property and structure changes of a client.
func (p *pump) watch(h native.Handle) {
	const mask = xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify
	xproto.ChangeWindowAttributes(p.s.xu.Conn(), xproto.Window(h), xproto.CwEventMask, []uint32{mask})
}

func (p *pump) syncClients() {
	list, err := p.s.EnumWindows()
	if err != nil {
		logger.WithComponent("x11").Debug().Err(err).Msg("Client list unavailable")
		return
	}
	created, destroyed, set := diffClients(p.clients, list)
	p.clients = set
	for _, h := range destroyed {
		p.emit(native.EVENT_OBJECT_DESTROY, h)
	}
	for _, h := range created {
		p.watch(h)
		p.emit(native.EVENT_OBJECT_CREATE, h)
	}
}

func (p *pump) dispatch(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.PropertyNotifyEvent:
		if e.Window == p.s.root {
			p.rootProperty(e.Atom)
			return
		}
		h := native.Handle(e.Window)
		switch e.Atom {
		case p.atoms.netWmName, p.atoms.wmName:
			p.emit(native.EVENT_OBJECT_NAMECHANGE, h)
		case p.atoms.netWmState, p.atoms.wmState, p.atoms.wmDesktop:
			p.emit(native.EVENT_OBJECT_LOCATIONCHANGE, h)
		}
	case xproto.ConfigureNotifyEvent:
		if e.Window != p.s.root {
			p.emit(native.EVENT_OBJECT_LOCATIONCHANGE, native.Handle(e.Window))
		}
	case xproto.DestroyNotifyEvent:
		h := native.Handle(e.Window)
		if p.clients[h] {
			delete(p.clients, h)
			p.emit(native.EVENT_OBJECT_DESTROY, h)
		}
	case randr.ScreenChangeNotifyEvent:
		p.sink.DisplayChange()
	}
}

func (p *pump) rootProperty(atom xproto.Atom) {
	switch atom {
	case p.atoms.activeWindow:
		if h := p.s.ForegroundWindow(); h != 0 {
			p.emit(native.EVENT_SYSTEM_FOREGROUND, h)
		}
	case p.atoms.clientList:
		p.syncClients()
	case p.atoms.currentDesktop:
		p.emit(native.EVENT_SYSTEM_DESKTOPSWITCH, 0)
	case p.atoms.workarea:
		p.sink.SettingChange()
	}
}

// Pump selects root and client events and delivers them to sink until ctx
// is cancelled. X events are read on a separate goroutine; it exits when
// the connection is closed.
func (s *X11) Pump(ctx context.Context, cfg native.PumpConfig, sink native.Sink) error {
	log := logger.WithComponent("x11")
	conn := s.xu.Conn()

	a, err := s.internAtoms()
	if err != nil {
		return err
	}
	if err := xproto.ChangeWindowAttributesChecked(
		conn,
		s.root,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify},
	).Check(); err != nil {
		return err
	}
	if err := randr.SelectInputChecked(conn, s.root, randr.NotifyMaskScreenChange).Check(); err != nil {
		log.Warn().Err(err).Msg("RandR screen change notifications unavailable")
	}

	p := &pump{s: s, cfg: cfg, sink: sink, atoms: a, clients: make(map[native.Handle]bool)}
	list, err := s.EnumWindows()
	if err != nil {
		return err
	}
	for _, h := range list {
		p.clients[h] = true
		p.watch(h)
	}

	events := make(chan xgb.Event, 64)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev, xerr := conn.WaitForEvent()
			if ev == nil && xerr == nil {
				return
			}
			if xerr != nil {
				// Errors of unchecked requests, mostly BadWindow for clients
				// that went away.
				continue
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	var watchC, recentC <-chan time.Time
	if cfg.WatchInterval > 0 {
		t := time.NewTicker(cfg.WatchInterval)
		defer t.Stop()
		watchC = t.C
	}
	if cfg.RecentInterval > 0 {
		t := time.NewTicker(cfg.RecentInterval)
		defer t.Stop()
		recentC = t.C
	}

	log.Debug().
		Dur("watch_interval", cfg.WatchInterval).
		Dur("recent_interval", cfg.RecentInterval).
		Int("clients", len(p.clients)).
		Msg("X11 event pump started")

	if cfg.Started != nil {
		cfg.Started()
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("X11 event pump stopped")
			return nil
		case ev := <-events:
			p.dispatch(ev)
		case <-watchC:
			sink.Timer(native.TimerWatch)
		case <-recentC:
			sink.Timer(native.TimerRecent)
		}
	}
}
