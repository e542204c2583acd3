// Package log adapts the teacher's progress-indicator/step-logger pair for
// the resumable historical bootstrap of §4.13: a per-channel spinner plus
// progress bar, and a StepLogger used to report backfill stage timings
// (fetch page, process batch, checkpoint) to the operator's terminal
// alongside the structured zerolog stream.
package log

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProgressIndicator renders a single named operation's progress: an
// optional spinner, an optional bar, and an optional ETA.
type ProgressIndicator struct {
	mu           sync.Mutex
	name         string
	total        int
	current      int
	startTime    time.Time
	lastUpdate   time.Time
	spinner      *Spinner
	showSpinner  bool
	showProgress bool
	showETA      bool
}

// Spinner animates one of a small set of character sequences on its own
// ticker goroutine.
type Spinner struct {
	chars    []string
	current  int
	interval time.Duration
	stop     chan bool
	running  bool
	mu       sync.Mutex
}

// ProgressConfig configures a ProgressIndicator's display.
type ProgressConfig struct {
	ShowSpinner  bool
	ShowProgress bool
	ShowETA      bool
	SpinnerStyle SpinnerStyle
}

type SpinnerStyle string

const (
	SpinnerDots     SpinnerStyle = "dots"
	SpinnerLine     SpinnerStyle = "line"
	SpinnerBackfill SpinnerStyle = "backfill"
)

func NewProgressIndicator(name string, total int, config ProgressConfig) *ProgressIndicator {
	pi := &ProgressIndicator{
		name:         name,
		total:        total,
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		showSpinner:  config.ShowSpinner,
		showProgress: config.ShowProgress,
		showETA:      config.ShowETA,
	}
	if config.ShowSpinner {
		pi.spinner = NewSpinner(config.SpinnerStyle)
		pi.spinner.Start()
	}
	return pi
}

func NewSpinner(style SpinnerStyle) *Spinner {
	s := &Spinner{interval: 100 * time.Millisecond, stop: make(chan bool, 1)}
	switch style {
	case SpinnerLine:
		s.chars = []string{"-", "\\", "|", "/"}
	case SpinnerBackfill:
		s.chars = []string{"↻", "↺"}
		s.interval = 250 * time.Millisecond
	default:
		s.chars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	}
	return s
}

func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.spin()
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stop <- true
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.current = (s.current + 1) % len(s.chars)
			s.mu.Unlock()
		}
	}
}

func (s *Spinner) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chars[s.current]
}

func (pi *ProgressIndicator) Increment() { pi.Update(pi.current + 1) }

func (pi *ProgressIndicator) Update(current int) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.current = current
	pi.lastUpdate = time.Now()
	if pi.showProgress || pi.showETA {
		pi.printProgress()
	}
}

func (pi *ProgressIndicator) UpdateWithMessage(current int, message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.current = current
	pi.lastUpdate = time.Now()
	pi.printProgressWithMessage(message)
}

func (pi *ProgressIndicator) Finish() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.spinner != nil {
		pi.spinner.Stop()
	}
	duration := time.Since(pi.startTime)
	fmt.Printf("\r done: %s (%d items, %v)\n", pi.name, pi.total, duration.Round(time.Millisecond))
}

func (pi *ProgressIndicator) FinishWithMessage(message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.spinner != nil {
		pi.spinner.Stop()
	}
	duration := time.Since(pi.startTime)
	fmt.Printf("\r done: %s: %s (%v)\n", pi.name, message, duration.Round(time.Millisecond))
}

func (pi *ProgressIndicator) Fail(reason string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.spinner != nil {
		pi.spinner.Stop()
	}
	duration := time.Since(pi.startTime)
	fmt.Printf("\r failed: %s: %s (%v)\n", pi.name, reason, duration.Round(time.Millisecond))
}

func (pi *ProgressIndicator) printProgress() { pi.printProgressWithMessage("") }

func (pi *ProgressIndicator) printProgressWithMessage(message string) {
	var output strings.Builder
	output.WriteString("\r\033[K")

	if pi.spinner != nil && pi.showSpinner {
		output.WriteString(pi.spinner.Current())
		output.WriteString(" ")
	}
	output.WriteString(pi.name)

	if pi.showProgress && pi.total > 0 {
		percentage := float64(pi.current) / float64(pi.total) * 100
		barWidth := 20
		filled := int(float64(barWidth) * float64(pi.current) / float64(pi.total))
		output.WriteString(" [")
		for i := 0; i < barWidth; i++ {
			if i < filled {
				output.WriteString("#")
			} else {
				output.WriteString(".")
			}
		}
		output.WriteString(fmt.Sprintf("] %d/%d (%.1f%%)", pi.current, pi.total, percentage))
	} else if pi.total > 0 {
		output.WriteString(fmt.Sprintf(" (%d/%d)", pi.current, pi.total))
	}

	if pi.showETA && pi.total > 0 && pi.current > 0 {
		elapsed := time.Since(pi.startTime)
		rate := float64(pi.current) / elapsed.Seconds()
		remaining := pi.total - pi.current
		eta := time.Duration(float64(remaining)/rate) * time.Second
		if eta > time.Hour {
			output.WriteString(fmt.Sprintf(" ETA: %v", eta.Round(time.Minute)))
		} else {
			output.WriteString(fmt.Sprintf(" ETA: %v", eta.Round(time.Second)))
		}
	}

	if message != "" {
		output.WriteString(" - ")
		output.WriteString(message)
	}
	fmt.Print(output.String())
}

// StepLogger reports timing for a fixed, named sequence of backfill stages
// (§4.13: fetch page, process batch, checkpoint) per channel.
type StepLogger struct {
	steps       []string
	currentStep int
	startTime   time.Time
	stepTimes   []time.Duration
	progress    *ProgressIndicator
}

func NewStepLogger(name string, steps []string) *StepLogger {
	cfg := ProgressConfig{ShowSpinner: true, ShowProgress: true, ShowETA: true, SpinnerStyle: SpinnerBackfill}
	return &StepLogger{
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
		progress:    NewProgressIndicator(name, len(steps), cfg),
	}
}

func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}
	if stepIndex == -1 {
		log.Warn().Str("step", stepName).Msg("unknown backfill stage")
		return
	}
	if sl.currentStep >= 0 {
		sl.stepTimes[sl.currentStep] = time.Since(sl.startTime) - sl.getTotalElapsed()
	}
	sl.currentStep = stepIndex
	sl.progress.UpdateWithMessage(stepIndex+1, stepName)

	log.Info().Str("stage", stepName).Int("stage_number", stepIndex+1).Int("total_stages", len(sl.steps)).Msg("starting backfill stage")
}

func (sl *StepLogger) CompleteStep() {
	if sl.currentStep >= 0 {
		d := time.Since(sl.startTime) - sl.getTotalElapsed()
		sl.stepTimes[sl.currentStep] = d
		log.Info().Str("stage", sl.steps[sl.currentStep]).Dur("duration", d).Msg("backfill stage completed")
	}
}

func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	total := time.Since(sl.startTime)
	sl.progress.FinishWithMessage(fmt.Sprintf("all %d stages completed", len(sl.steps)))
	log.Info().Dur("total_duration", total).Msg("backfill completed")
}

func (sl *StepLogger) Fail(reason string) {
	sl.progress.Fail(reason)
	log.Error().
		Str("failed_stage", sl.getCurrentStepName()).
		Int("completed_stages", sl.currentStep).
		Int("total_stages", len(sl.steps)).
		Str("reason", reason).
		Msg("backfill failed")
}

func (sl *StepLogger) getCurrentStepName() string {
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		return sl.steps[sl.currentStep]
	}
	return "unknown"
}

func (sl *StepLogger) getTotalElapsed() time.Duration {
	var total time.Duration
	for i := 0; i < sl.currentStep; i++ {
		if i < len(sl.stepTimes) {
			total += sl.stepTimes[i]
		}
	}
	return total
}

func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{ShowSpinner: true, ShowProgress: true, ShowETA: true, SpinnerStyle: SpinnerDots}
}

func QuietProgressConfig() ProgressConfig {
	return ProgressConfig{ShowSpinner: false, ShowProgress: false, ShowETA: false, SpinnerStyle: SpinnerDots}
}
