package target

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"pointers/internal/analysis"
	"pointers/internal/arch"
	"pointers/internal/elfx"
)

// Process is a running program inspected through procfs. It is not stopped;
// callers attach with a debugger first when they need a stable view.
type Process struct {
	pid     int
	proc    procfs.Proc
	exe     string
	mem     *os.File
	arch    arch.Architecture
	symbols *Symbolizer
}

func OpenProcess(pid int, opts Options) (Target, error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return nil, fmt.Errorf("procfs: %w", err)
	}
	proc, err := fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	exe, err := proc.Executable()
	if err != nil {
		return nil, fmt.Errorf("process %d executable: %w", pid, err)
	}

	main, err := elfx.Open(exe)
	if err != nil {
		return nil, err
	}
	a, err := arch.FromELF(main.File)
	if err == nil {
		a, err = a.Override(opts.PointerWidth, opts.Endian)
	}
	if err != nil {
		main.Close()
		return nil, fmt.Errorf("%s: %w", exe, err)
	}

	maps, err := proc.ProcMaps()
	if err != nil {
		main.Close()
		return nil, fmt.Errorf("process %d maps: %w", pid, err)
	}
	symbols, err := NewSymbolizer(exe, modules(exe, main, maps), opts.CacheSize)
	if err != nil {
		main.Close()
		return nil, err
	}

	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		symbols.Close()
		return nil, fmt.Errorf("process %d memory: %w", pid, err)
	}

	slog.Debug("Opened process", "pid", pid, "exe", exe, "arch", a.String(), "mappings", len(maps))
	return &Process{pid: pid, proc: proc, exe: exe, mem: mem, arch: a, symbols: symbols}, nil
}

// modules groups file-backed mappings by path. Each module spans its lowest
// to its highest mapping, and its load bias comes from the mapping with the
// lowest file offset.
func modules(exe string, main *elfx.Image, maps []*procfs.ProcMap) []*Module {
	type span struct {
		start, end uint64
		off        uint64
	}
	spans := make(map[string]*span)
	var order []string
	for _, m := range maps {
		if !strings.HasPrefix(m.Pathname, "/") {
			continue
		}
		start, end, off := uint64(m.StartAddr), uint64(m.EndAddr), uint64(m.Offset)
		s, ok := spans[m.Pathname]
		if !ok {
			spans[m.Pathname] = &span{start, end, off}
			order = append(order, m.Pathname)
			continue
		}
		if start < s.start {
			s.start, s.off = start, off
		}
		if end > s.end {
			s.end = end
		}
	}

	mainUsed := false
	var mods []*Module
	for _, path := range order {
		s := spans[path]
		if path == exe {
			m := NewModule(path, s.start, s.end, main, loadBias(main, s.start, s.off))
			m.closer = main
			mods = append(mods, m)
			mainUsed = true
			continue
		}
		path, s := path, s
		mods = append(mods, LazyModule(path, s.start, s.end, func() (Table, uint64, error) {
			im, err := elfx.Open(path)
			if err != nil {
				return nil, 0, err
			}
			return im, loadBias(im, s.start, s.off), nil
		}))
	}
	if !mainUsed {
		main.Close()
	}
	return mods
}

// loadBias is the distance between where the mapping at file offset off was
// placed and the address the object was linked at.
func loadBias(im *elfx.Image, start, off uint64) uint64 {
	va, ok := im.Off2VA(off)
	if !ok {
		return 0
	}
	return start - va
}

func (p *Process) ReadMemory(addr uint64, n int) ([]byte, error) {
	if addr > 1<<63-1 {
		return nil, unreadable(addr, n)
	}
	buf := make([]byte, n)
	got, err := unix.Pread(int(p.mem.Fd()), buf, int64(addr))
	if err != nil || got <= 0 {
		return nil, unreadable(addr, n)
	}
	return buf[:got], nil
}

func (p *Process) Mappings() ([]analysis.Segment, error) {
	maps, err := p.proc.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("process %d maps: %w", p.pid, err)
	}
	segs := make([]analysis.Segment, 0, len(maps))
	for _, m := range maps {
		segs = append(segs, analysis.Segment{
			ScanRange: analysis.ScanRange{Start: uint64(m.StartAddr), End: uint64(m.EndAddr)},
			Perms:     mapPerms(m.Perms),
			Path:      m.Pathname,
		})
	}
	return segs, nil
}

func mapPerms(p *procfs.ProcMapPermissions) string {
	b := []byte("----")
	if p == nil {
		return string(b)
	}
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	if p.Shared {
		b[3] = 's'
	} else if p.Private {
		b[3] = 'p'
	}
	return string(b)
}

func (p *Process) PC() (uint64, error) {
	_, pc, err := p.stack()
	return pc, err
}

func (p *Process) Registers() (map[string]uint64, error) {
	sp, pc, err := p.stack()
	if err != nil {
		return nil, err
	}
	regs := make(map[string]uint64)
	for _, name := range p.arch.PCNames {
		regs[name] = pc
	}
	for _, name := range p.arch.SPNames {
		regs[name] = sp
	}
	return regs, nil
}

func (p *Process) stack() (sp, pc uint64, err error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/syscall", p.pid))
	if err != nil {
		return 0, 0, fmt.Errorf("process %d registers: %w", p.pid, err)
	}
	return parseSyscall(string(data))
}

// parseSyscall reads the stack pointer and program counter from the last two
// fields of /proc/<pid>/syscall. A running thread reports neither.
func parseSyscall(s string) (sp, pc uint64, err error) {
	fields := strings.Fields(s)
	if len(fields) == 1 && fields[0] == "running" {
		return 0, 0, fmt.Errorf("process is running; stop it or pass --pc")
	}
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("unexpected syscall state %q", strings.TrimSpace(s))
	}
	sp, err = strconv.ParseUint(fields[len(fields)-2], 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("stack pointer: %w", err)
	}
	pc, err = strconv.ParseUint(fields[len(fields)-1], 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("program counter: %w", err)
	}
	return sp, pc, nil
}

func (p *Process) Symbols() *Symbolizer { return p.symbols }

func (p *Process) Arch() arch.Architecture { return p.arch }

func (p *Process) Close() error {
	err := p.mem.Close()
	if serr := p.symbols.Close(); err == nil {
		err = serr
	}
	return err
}
