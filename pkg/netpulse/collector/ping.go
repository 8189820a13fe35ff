package collector

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// PingResult is the outcome of one ICMP probe. A command timeout or non-zero
// exit maps to unreachable with 100% loss; Ping never returns an error for
// host-level failures.
type PingResult struct {
	Reachable     bool
	LatencyMs     float64 // round-trip average; 0 when unreachable
	PacketLossPct float64
}

// Pinger runs the system ping utility. The subprocess approach is deliberate:
// raw ICMP sockets need privileges the collector should not have.
type Pinger struct {
	// Count is the number of echoes per probe. Default 3.
	Count int
	// Timeout is the per-echo timeout. Default 2 s.
	Timeout time.Duration

	// runCommand overrides subprocess execution in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPinger returns a Pinger with the given echo count and per-echo timeout.
func NewPinger(count int, timeout time.Duration) *Pinger {
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pinger{Count: count, Timeout: timeout}
}

// Ping probes ip once with Count echoes. The overall subprocess deadline is
// Count × Timeout plus one extra second of slack.
func (p *Pinger) Ping(ctx context.Context, ip string) PingResult {
	name, args := p.command(ip)

	deadline := time.Duration(p.Count)*p.Timeout + time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	run := p.runCommand
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}

	out, err := run(runCtx, name, args...)
	if err != nil {
		// Timeout, unreachable (exit 1/2), or missing binary: all unreachable.
		return PingResult{Reachable: false, PacketLossPct: 100}
	}
	return parsePingOutput(string(out))
}

// command builds the platform-specific ping invocation:
// POSIX `ping -c N -W S`, Windows `ping -n N -w MS`.
func (p *Pinger) command(ip string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "ping", []string{
			"-n", strconv.Itoa(p.Count),
			"-w", strconv.Itoa(int(p.Timeout.Milliseconds())),
			ip,
		}
	}
	return "ping", []string{
		"-c", strconv.Itoa(p.Count),
		"-W", strconv.Itoa(int(p.Timeout.Seconds())),
		ip,
	}
}

var (
	// POSIX: "rtt min/avg/max/mdev = 0.045/0.049/0.053/0.003 ms" or
	// "round-trip min/avg/max/stddev = …" on BSD/macOS.
	posixRTT = regexp.MustCompile(`(?:rtt|round-trip)[^=]*=\s*[\d.]+/([\d.]+)/`)
	// Windows: "Average = 12ms".
	winAvg = regexp.MustCompile(`Average\s*=\s*(\d+)\s*ms`)
	// Per-echo "time=2.53 ms" lines, used when no summary is printed.
	echoTime = regexp.MustCompile(`time[=<]([\d.]+)\s*ms`)

	// POSIX "25% packet loss", Windows "(25% loss)".
	lossPct = regexp.MustCompile(`(\d+(?:\.\d+)?)%\s*(?:packet\s+)?loss`)
)

// parsePingOutput extracts average RTT and packet loss from the two known
// output dialects. Output that matches neither falls back to averaging the
// per-echo times; with no echo time at all it is treated as unreachable with
// 100% loss.
func parsePingOutput(out string) PingResult {
	res := PingResult{Reachable: true}

	if m := lossPct.FindStringSubmatch(out); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			res.PacketLossPct = v
		}
	}
	if res.PacketLossPct >= 100 {
		return PingResult{Reachable: false, PacketLossPct: 100}
	}

	switch {
	case posixRTT.MatchString(out):
		m := posixRTT.FindStringSubmatch(out)
		res.LatencyMs, _ = strconv.ParseFloat(m[1], 64)
	case winAvg.MatchString(out):
		m := winAvg.FindStringSubmatch(out)
		res.LatencyMs, _ = strconv.ParseFloat(m[1], 64)
	default:
		// Fall back to averaging the per-echo times.
		matches := echoTime.FindAllStringSubmatch(out, -1)
		if len(matches) == 0 {
			return PingResult{Reachable: false, PacketLossPct: 100}
		}
		var sum float64
		for _, m := range matches {
			v, _ := strconv.ParseFloat(m[1], 64)
			sum += v
		}
		res.LatencyMs = sum / float64(len(matches))
	}
	return res
}
