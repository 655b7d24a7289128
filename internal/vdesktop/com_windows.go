//go:build windows

package vdesktop

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/native"
)

// Documented and long-stable interfaces.
var (
	clsidImmersiveShell          = ole.NewGUID("{C2F03A33-21F5-47FA-B4BB-156362A2F239}")
	sidVirtualDesktopManagerInt  = ole.NewGUID("{C5E0CDCA-7B6E-41B2-9FC4-D93975CC467B}")
	clsidVirtualDesktopManager   = ole.NewGUID("{AA509086-5CA9-4C25-8F95-589D3C07B48A}")
	iidVirtualDesktopManager     = ole.NewGUID("{A5CD92FF-29BE-454C-8D04-D82879FB3F1B}")
	clsidVirtualDesktopPinned    = ole.NewGUID("{B5A399E7-1C87-46B8-88E9-FC5747B171BD}")
	iidVirtualDesktopPinnedApps  = ole.NewGUID("{4CE81583-1E4C-4632-A621-07A53543148F}")
	iidApplicationViewCollection = ole.NewGUID("{1841C6D7-4F9D-42C0-AF41-8747538F10E5}")
	iidServiceProvider           = ole.NewGUID("{6D5140C1-7436-11CE-8034-00AA006009FA}")
)

const (
	hrElementNotFound    = 0x8002802B
	hrServerUnavailable  = 0x800706BA
	hrCallFailed         = 0x800706BE
	hrNotImplemented     = 0x80004001
	hrCOMAlreadyInitMode = 0x80010106
)

// Vtable slots of interfaces that do not change between builds.
const (
	slotRelease = 2

	slotQueryService = 3

	slotObjectArrayGetCount = 3
	slotObjectArrayGetAt    = 4

	slotIsWindowOnCurrentDesktop = 3
	slotGetWindowDesktopID       = 4

	slotGetViewForHwnd = 6
	slotIsViewPinned   = 6
)

// comLayout describes the undocumented interfaces of one family of builds.
// Slots are vtable indices.
type comLayout struct {
	managerInternal *ole.GUID
	desktop         *ole.GUID
	// monitorArg is set when the manager methods take an HMONITOR first.
	monitorArg bool

	getCount      int
	moveView      int
	getCurrent    int
	getDesktops   int
	switchDesktop int

	getID int
	// getName is zero when names are only kept in the registry.
	getName int
}

var comLayouts = map[string]comLayout{
	config.Layout17661: {
		managerInternal: ole.NewGUID("{F31574D6-B682-4CDC-BD56-1827860ABEC6}"),
		desktop:         ole.NewGUID("{FF72FFDD-BE7E-43FC-9C03-AD81681E88E4}"),
		getCount:        3,
		moveView:        4,
		getCurrent:      6,
		getDesktops:     7,
		switchDesktop:   9,
		getID:           4,
	},
	config.Layout21H2: {
		managerInternal: ole.NewGUID("{B2F925B9-5A0F-4D2E-9F4D-2B1507593C10}"),
		desktop:         ole.NewGUID("{536D3495-B208-4CC9-AE26-DE8111275BF8}"),
		monitorArg:      true,
		getCount:        3,
		moveView:        4,
		getCurrent:      6,
		getDesktops:     8,
		switchDesktop:   10,
		getID:           4,
		getName:         6,
	},
	config.Layout22621R2215: {
		managerInternal: ole.NewGUID("{A3175F2D-239C-4BD2-8AA0-EEBA8B0B138E}"),
		desktop:         ole.NewGUID("{3F07F4BE-B107-441A-AF0F-39D82529072C}"),
		getCount:        3,
		moveView:        4,
		getCurrent:      6,
		getDesktops:     7,
		switchDesktop:   9,
		getID:           4,
		getName:         5,
	},
	config.Layout22631R3085: {
		managerInternal: ole.NewGUID("{53F5CA0B-158F-4124-900C-057158060B27}"),
		desktop:         ole.NewGUID("{3F07F4BE-B107-441A-AF0F-39D82529072C}"),
		getCount:        3,
		moveView:        4,
		getCurrent:      6,
		getDesktops:     7,
		switchDesktop:   9,
		getID:           4,
		getName:         5,
	},
}

var (
	modcombase                    = windows.NewLazySystemDLL("combase.dll")
	procWindowsGetStringRawBuffer = modcombase.NewProc("WindowsGetStringRawBuffer")
	procWindowsDeleteString       = modcombase.NewProc("WindowsDeleteString")
)

var mtaOnce sync.Once

// joinMTA parks one OS thread in the multithreaded apartment for the life
// of the process so that every goroutine can make COM calls.
func joinMTA() {
	mtaOnce.Do(func() {
		ready := make(chan struct{})
		go func() {
			runtime.LockOSThread()
			if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
				if oerr, ok := err.(*ole.OleError); !ok || (oerr.Code() != 1 && uint32(oerr.Code()) != hrCOMAlreadyInitMode) {
					logger.WithComponent("vdesktop").Warn().Err(err).Msg("COM initialization failed")
				}
			}
			close(ready)
			select {}
		}()
		<-ready
	})
}

// vcall invokes vtable slot of obj.
//
//go:uintptrescapes
func vcall(obj *ole.IUnknown, slot int, args ...uintptr) uint32 {
	vtbl := unsafe.Slice((*uintptr)(unsafe.Pointer(obj.RawVTable)), slot+1)
	all := append([]uintptr{uintptr(unsafe.Pointer(obj))}, args...)
	hr, _, _ := syscall.SyscallN(vtbl[slot], all...)
	return uint32(hr)
}

func hresult(op string, hr uint32) error {
	if int32(hr) >= 0 {
		return nil
	}
	nerr := native.NewError(op, hr)
	switch hr {
	case hrElementNotFound:
		return fmt.Errorf("%w: %w", ErrElementNotFound, nerr)
	case hrServerUnavailable:
		return fmt.Errorf("%w: %w", ErrServerUnavailable, nerr)
	case hrCallFailed:
		return fmt.Errorf("%w: %w", ErrCallFailed, nerr)
	case hrNotImplemented:
		return fmt.Errorf("%w: %w", ErrNotImplemented, nerr)
	}
	return nerr
}

func release(obj *ole.IUnknown) {
	if obj != nil {
		vcall(obj, slotRelease)
	}
}

func uuidFromGUID(g *ole.GUID) uuid.UUID {
	b := unsafe.Slice((*byte)(unsafe.Pointer(g)), 16)
	u, _ := uuidFromGUIDBytes(b)
	return u
}

// comService talks to the shell's virtual desktop interfaces.
type comService struct {
	layoutName string
	layout     comLayout

	mu       sync.Mutex
	shell    *ole.IUnknown
	internal *ole.IUnknown
	manager  *ole.IUnknown
	views    *ole.IUnknown
	pinned   *ole.IUnknown
}

var _ Service = (*comService)(nil)

func newCOMService(layoutName string) (*comService, error) {
	layout, ok := comLayouts[layoutName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown COM layout %q", ErrNotSupported, layoutName)
	}
	joinMTA()
	s := &comService{layoutName: layoutName, layout: layout}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func queryService(sp *ole.IUnknown, sid, iid *ole.GUID) (*ole.IUnknown, error) {
	var out *ole.IUnknown
	hr := vcall(sp, slotQueryService,
		uintptr(unsafe.Pointer(sid)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)))
	if err := hresult("IServiceProvider.QueryService", hr); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect acquires fresh interface pointers, dropping the old ones.
func (s *comService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()

	shell, err := ole.CreateInstance(clsidImmersiveShell, iidServiceProvider)
	if err != nil {
		return fmt.Errorf("create ImmersiveShell: %w", err)
	}
	s.shell = shell

	if s.internal, err = queryService(shell, sidVirtualDesktopManagerInt, s.layout.managerInternal); err != nil {
		return fmt.Errorf("IVirtualDesktopManagerInternal (%s): %w", s.layoutName, err)
	}
	if s.manager, err = ole.CreateInstance(clsidVirtualDesktopManager, iidVirtualDesktopManager); err != nil {
		return fmt.Errorf("create VirtualDesktopManager: %w", err)
	}
	if s.views, err = queryService(shell, iidApplicationViewCollection, iidApplicationViewCollection); err != nil {
		return fmt.Errorf("IApplicationViewCollection: %w", err)
	}
	if s.pinned, err = queryService(shell, clsidVirtualDesktopPinned, iidVirtualDesktopPinnedApps); err != nil {
		return fmt.Errorf("IVirtualDesktopPinnedApps: %w", err)
	}

	logger.WithComponent("vdesktop").Debug().Str("layout", s.layoutName).Msg("Connected to the desktop service")
	return nil
}

func (s *comService) releaseLocked() {
	for _, p := range []**ole.IUnknown{&s.pinned, &s.views, &s.manager, &s.internal, &s.shell} {
		release(*p)
		*p = nil
	}
}

func (s *comService) internalCall(op string, slot int, args ...uintptr) error {
	if s.layout.monitorArg {
		args = append([]uintptr{0}, args...)
	}
	return hresult(op, vcall(s.internal, slot, args...))
}

func (s *comService) countLocked() (int, error) {
	var n int32
	if err := s.internalCall("GetCount", s.layout.getCount, uintptr(unsafe.Pointer(&n))); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *comService) desktopIDLocked(obj *ole.IUnknown) (uuid.UUID, error) {
	var g ole.GUID
	if err := hresult("IVirtualDesktop.GetId", vcall(obj, s.layout.getID, uintptr(unsafe.Pointer(&g)))); err != nil {
		return uuid.Nil, err
	}
	return uuidFromGUID(&g), nil
}

func (s *comService) currentIDLocked() (uuid.UUID, error) {
	var obj *ole.IUnknown
	if err := s.internalCall("GetCurrentDesktop", s.layout.getCurrent, uintptr(unsafe.Pointer(&obj))); err != nil {
		return uuid.Nil, err
	}
	defer release(obj)
	return s.desktopIDLocked(obj)
}

// eachDesktopLocked walks the desktop collection in order until fn returns
// false. The object passed to fn is released after fn returns.
func (s *comService) eachDesktopLocked(fn func(i int, obj *ole.IUnknown, id uuid.UUID) bool) error {
	var arr *ole.IUnknown
	if err := s.internalCall("GetDesktops", s.layout.getDesktops, uintptr(unsafe.Pointer(&arr))); err != nil {
		return err
	}
	defer release(arr)

	var n uint32
	if err := hresult("IObjectArray.GetCount", vcall(arr, slotObjectArrayGetCount, uintptr(unsafe.Pointer(&n)))); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var obj *ole.IUnknown
		hr := vcall(arr, slotObjectArrayGetAt,
			uintptr(i),
			uintptr(unsafe.Pointer(s.layout.desktop)),
			uintptr(unsafe.Pointer(&obj)))
		if err := hresult("IObjectArray.GetAt", hr); err != nil {
			return err
		}
		id, err := s.desktopIDLocked(obj)
		if err != nil {
			release(obj)
			return err
		}
		more := fn(int(i), obj, id)
		release(obj)
		if !more {
			break
		}
	}
	return nil
}

// withDesktopLocked finds the desktop object for id and calls fn with it.
func (s *comService) withDesktopLocked(id uuid.UUID, fn func(i int, obj *ole.IUnknown) error) error {
	var callErr error
	found := false
	err := s.eachDesktopLocked(func(i int, obj *ole.IUnknown, got uuid.UUID) bool {
		if got != id {
			return true
		}
		found = true
		callErr = fn(i, obj)
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: desktop %s", ErrElementNotFound, id)
	}
	return callErr
}

func (s *comService) indexOfLocked(id uuid.UUID) (int, error) {
	idx := -1
	err := s.withDesktopLocked(id, func(i int, _ *ole.IUnknown) error {
		idx = i
		return nil
	})
	return idx, err
}

func (s *comService) viewLocked(h native.Handle) (*ole.IUnknown, error) {
	var view *ole.IUnknown
	hr := vcall(s.views, slotGetViewForHwnd, uintptr(h), uintptr(unsafe.Pointer(&view)))
	if err := hresult("GetViewForHwnd", hr); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *comService) CurrentDesktopIndex() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.currentIDLocked()
	if err != nil {
		return 0, err
	}
	return s.indexOfLocked(id)
}

func (s *comService) CurrentDesktopID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIDLocked()
}

func (s *comService) DesktopCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

func (s *comService) Desktops() ([]Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Descriptor
	err := s.eachDesktopLocked(func(_ int, _ *ole.IUnknown, id uuid.UUID) bool {
		out = append(out, Descriptor{ID: id})
		return true
	})
	return out, err
}

func (s *comService) DesktopByIndex(index int) (Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		desc  Descriptor
		found bool
	)
	err := s.eachDesktopLocked(func(i int, _ *ole.IUnknown, id uuid.UUID) bool {
		if i == index {
			desc, found = Descriptor{ID: id}, true
			return false
		}
		return true
	})
	if err != nil {
		return Descriptor{}, err
	}
	if !found {
		return Descriptor{}, fmt.Errorf("%w: desktop index %d", ErrElementNotFound, index)
	}
	return desc, nil
}

func (s *comService) DesktopIndex(d Descriptor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(d.ID)
}

func (s *comService) DesktopName(d Descriptor) (string, error) {
	if s.layout.getName == 0 {
		return registryDesktopName(d.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var name string
	err := s.withDesktopLocked(d.ID, func(_ int, obj *ole.IUnknown) error {
		var hs uintptr
		if err := hresult("IVirtualDesktop.GetName", vcall(obj, s.layout.getName, uintptr(unsafe.Pointer(&hs)))); err != nil {
			return err
		}
		name = hstringToString(hs)
		return nil
	})
	return name, err
}

func hstringToString(hs uintptr) string {
	if hs == 0 {
		return ""
	}
	defer procWindowsDeleteString.Call(hs)
	var n uint32
	p, _, _ := procWindowsGetStringRawBuffer.Call(hs, uintptr(unsafe.Pointer(&n)))
	if p == 0 || n == 0 {
		return ""
	}
	return windows.UTF16ToString(unsafe.Slice((*uint16)(unsafe.Pointer(p)), n))
}

func (s *comService) SwitchToDesktop(d Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withDesktopLocked(d.ID, func(_ int, obj *ole.IUnknown) error {
		return s.internalCall("SwitchDesktop", s.layout.switchDesktop, uintptr(unsafe.Pointer(obj)))
	})
}

func (s *comService) MoveToDesktop(h native.Handle, d Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.viewLocked(h)
	if err != nil {
		return err
	}
	defer release(view)
	return s.withDesktopLocked(d.ID, func(_ int, obj *ole.IUnknown) error {
		hr := vcall(s.internal, s.layout.moveView, uintptr(unsafe.Pointer(view)), uintptr(unsafe.Pointer(obj)))
		return hresult("MoveViewToDesktop", hr)
	})
}

func (s *comService) IsWindowPinned(h native.Handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.viewLocked(h)
	if err != nil {
		return false, err
	}
	defer release(view)
	var pinned int32
	hr := vcall(s.pinned, slotIsViewPinned, uintptr(unsafe.Pointer(view)), uintptr(unsafe.Pointer(&pinned)))
	if err := hresult("IsViewPinned", hr); err != nil {
		return false, err
	}
	return pinned != 0, nil
}

func (s *comService) IsWindowOnCurrentDesktop(h native.Handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var on int32
	hr := vcall(s.manager, slotIsWindowOnCurrentDesktop, uintptr(h), uintptr(unsafe.Pointer(&on)))
	if err := hresult("IsWindowOnCurrentVirtualDesktop", hr); err != nil {
		return false, err
	}
	return on != 0, nil
}

func (s *comService) HasWindow(d Descriptor, h native.Handle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var g ole.GUID
	hr := vcall(s.manager, slotGetWindowDesktopID, uintptr(h), uintptr(unsafe.Pointer(&g)))
	if err := hresult("GetWindowDesktopId", hr); err != nil {
		return false, err
	}
	return uuidFromGUID(&g) == d.ID, nil
}

func (s *comService) IsCurrentDesktop(d Descriptor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.currentIDLocked()
	if err != nil {
		return false, err
	}
	return id == d.ID, nil
}
