package uci

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/okkaok/solaris/internal/board"
	"github.com/okkaok/solaris/internal/engine"
)

const (
	minHashMB     = 1
	maxHashMB     = 2048
	defaultHashMB = 128
)

// UCI implements the Universal Chess Interface protocol driver. It owns no
// search logic of its own: it parses commands into engine.UCILimits, starts
// and stops engine.Engine searches, and formats the engine's reports back
// into `info`/`bestmove` lines.
type UCI struct {
	engine   *engine.Engine
	position *board.Position

	ponderEnabled bool

	searching  atomic.Bool
	searchDone chan struct{}
}

// New creates a new UCI protocol handler around eng.
func New(eng *engine.Engine) *UCI {
	return &UCI{
		engine:        eng,
		position:      board.NewPosition(),
		ponderEnabled: true,
	}
}

// Run starts the UCI main loop, reading commands from stdin until `quit` or
// EOF.
func (u *UCI) Run() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "ponderhit":
			u.engine.PonderHit()
		case "setoption":
			u.handleSetOption(args)
		case "quit":
			return
		// Debug commands (outside the UCI spec proper, but conventional).
		case "d":
			fmt.Println(u.position.String())
		case "perft":
			u.handlePerft(args)
		}
	}
}

func (u *UCI) handleUCI() {
	fmt.Println("id name Solaris")
	fmt.Println("id author Solaris Team")
	fmt.Println()
	fmt.Printf("option name Hash type spin default %d min %d max %d\n", defaultHashMB, minHashMB, maxHashMB)
	fmt.Println("option name Ponder type check default true")
	fmt.Println("uciok")
}

func (u *UCI) handleNewGame() {
	u.engine.NewGame()
	u.position = board.NewPosition()
	u.engine.SetPosition(u.position)
}

// handlePosition parses and sets up a position:
//
//	position startpos
//	position startpos moves e2e4 e7e5
//	position fen <fen>
//	position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	var moveStart int
	switch args[0] {
	case "startpos":
		u.position = board.NewPosition()
		moveStart = 1
	case "fen":
		fenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				fenEnd = i + 1
				break
			}
		}
		pos, err := board.ParseFEN(strings.Join(args[1:fenEnd], " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string %v: %v\n", engine.ErrInvalidUCI, err)
			return
		}
		u.position = pos
		moveStart = fenEnd + 1
	default:
		return
	}

	for i, arg := range args {
		if arg == "moves" {
			moveStart = i + 1
			break
		}
	}

	if moveStart <= len(args) {
		for _, moveStr := range args[moveStart:] {
			m, err := board.ParseMove(moveStr, u.position)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string %v: %s\n", engine.ErrIllegalMove, moveStr)
				return
			}
			u.position.MakeMove(m)
		}
	}

	u.engine.SetPosition(u.position)
}

// goOptions holds the parsed `go` command arguments prior to translation
// into engine.UCILimits.
type goOptions struct {
	limits engine.UCILimits
}

func (u *UCI) parseGoOptions(args []string) goOptions {
	var opt goOptions
	opt.limits.Ponder = false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			i++
			if i < len(args) {
				opt.limits.Depth, _ = strconv.Atoi(args[i])
			}
		case "nodes":
			i++
			if i < len(args) {
				n, _ := strconv.ParseUint(args[i], 10, 64)
				opt.limits.Nodes = n
			}
		case "movetime":
			i++
			if i < len(args) {
				ms, _ := strconv.Atoi(args[i])
				opt.limits.MoveTime = time.Duration(ms) * time.Millisecond
			}
		case "wtime":
			i++
			if i < len(args) {
				ms, _ := strconv.Atoi(args[i])
				opt.limits.Time[board.White] = time.Duration(ms) * time.Millisecond
			}
		case "btime":
			i++
			if i < len(args) {
				ms, _ := strconv.Atoi(args[i])
				opt.limits.Time[board.Black] = time.Duration(ms) * time.Millisecond
			}
		case "winc":
			i++
			if i < len(args) {
				ms, _ := strconv.Atoi(args[i])
				opt.limits.Inc[board.White] = time.Duration(ms) * time.Millisecond
			}
		case "binc":
			i++
			if i < len(args) {
				ms, _ := strconv.Atoi(args[i])
				opt.limits.Inc[board.Black] = time.Duration(ms) * time.Millisecond
			}
		case "movestogo":
			i++
			if i < len(args) {
				opt.limits.MovesToGo, _ = strconv.Atoi(args[i])
			}
		case "infinite":
			opt.limits.Infinite = true
		case "ponder":
			opt.limits.Ponder = true
		}
	}
	return opt
}

func (u *UCI) handleGo(args []string) {
	if u.searching.Load() {
		return
	}
	opt := u.parseGoOptions(args)
	if !u.ponderEnabled {
		opt.limits.Ponder = false
	}

	u.searching.Store(true)
	u.searchDone = make(chan struct{})
	go func() {
		defer close(u.searchDone)
		defer u.searching.Store(false)
		u.engine.Go(opt.limits, u)
	}()
}

func (u *UCI) handleStop() {
	if !u.searching.Load() {
		return
	}
	u.engine.Stop()
	<-u.searchDone
}

func (u *UCI) handleSetOption(args []string) {
	name, value, ok := parseSetOption(args)
	if !ok {
		return
	}
	switch strings.ToLower(name) {
	case "hash":
		mb, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string %v: Hash value %q is not an integer\n", engine.ErrInvalidUCI, value)
			return
		}
		if err := u.engine.SetHashSize(mb); err != nil {
			fmt.Fprintf(os.Stderr, "info string %v\n", err)
		}
	case "ponder":
		u.ponderEnabled = strings.EqualFold(value, "true")
	}
}

// parseSetOption pulls the "name ... value ..." pair out of a setoption
// command's arguments (the name itself may contain spaces, though none of
// ours do).
func parseSetOption(args []string) (name, value string, ok bool) {
	var nameParts, valueParts []string
	mode := ""
	for _, a := range args {
		switch a {
		case "name":
			mode = "name"
			continue
		case "value":
			mode = "value"
			continue
		}
		switch mode {
		case "name":
			nameParts = append(nameParts, a)
		case "value":
			valueParts = append(valueParts, a)
		}
	}
	if len(nameParts) == 0 {
		return "", "", false
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " "), true
}

func (u *UCI) handlePerft(args []string) {
	if len(args) == 0 {
		return
	}
	depth, err := strconv.Atoi(args[0])
	if err != nil || depth < 0 {
		fmt.Fprintf(os.Stderr, "info string %v: perft depth %q\n", engine.ErrInvalidUCI, args[0])
		return
	}
	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)
	fmt.Printf("info string perft depth %d nodes %d time %dms\n", depth, nodes, elapsed.Milliseconds())
}

// IterationInfo implements engine.Reporter, emitting a UCI `info` line per
// completed iterative-deepening depth (§6).
func (u *UCI) IterationInfo(r engine.IterationReport, elapsed time.Duration, nps uint64, hashFull int) {
	var score string
	if r.IsMate {
		score = fmt.Sprintf("mate %d", r.MateIn)
	} else {
		score = fmt.Sprintf("cp %d", r.Score)
	}

	var pv strings.Builder
	for i, m := range r.PV {
		if i > 0 {
			pv.WriteByte(' ')
		}
		pv.WriteString(m.String())
	}

	fmt.Printf("info depth %d seldepth %d score %s nodes %d nps %d time %d hashfull %d multipv 1 pv %s\n",
		r.Depth, r.SelDepth, score, r.Nodes, nps, elapsed.Milliseconds(), hashFull, pv.String())
}

// SearchComplete implements engine.Reporter, emitting the final `bestmove`
// line once a `go` command settles.
func (u *UCI) SearchComplete(best, ponder board.Move) {
	if ponder != board.NoMove && u.ponderEnabled {
		fmt.Printf("bestmove %s ponder %s\n", best.String(), ponder.String())
	} else {
		fmt.Printf("bestmove %s\n", best.String())
	}
}
