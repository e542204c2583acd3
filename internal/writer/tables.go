// Package writer implements the §4.12 multi-table writer: four fixed-
// column-order tables, append semantics for MESSAGES and upsert semantics
// for the other three, daily-date-rotated subdirectories, and a best-effort
// secondary "sheet" mirror sink. Grounded on the teacher's atomic-write
// discipline (write-temp-then-rename, seen throughout
// internal/persistence and internal/infrastructure/datafacade), generalized
// from JSON blobs to RFC-4180 CSV rows with primary-key upsert.
package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

var (
	MessagesColumns = []string{
		"message_id", "timestamp", "channel_name", "message_text",
		"engagement_score", "crypto_mentions", "sentiment", "confidence",
	}
	TokenPricesColumns = []string{
		"address", "chain", "symbol", "price_usd", "market_cap",
		"volume_24h", "price_change_24h", "liquidity_usd", "pair_created_at",
	}
	PerformanceColumns = []string{
		"address", "chain", "first_message_id", "start_price", "start_time",
		"ath_since_mention", "ath_time", "ath_multiplier", "current_multiplier", "days_tracked",
	}
	HistoricalColumns = []string{
		"address", "chain", "all_time_ath", "all_time_ath_date", "distance_from_ath",
		"all_time_atl", "all_time_atl_date", "distance_from_atl",
	}
)

// SheetSink mirrors table rows to a secondary destination (e.g. a hosted
// spreadsheet). Failures here are logged and dropped; they must never fail
// the primary file write (§4.12).
type SheetSink interface {
	Upsert(table string, primaryKey string, row []string) error
	Append(table string, row []string) error
}

// Writer owns the four tables under outputRoot, rotating into a
// date-scoped subdirectory at local-date boundaries.
type Writer struct {
	root  string
	sink  SheetSink // nil if disabled

	mu        sync.Mutex
	perTable  map[string]*sync.Mutex
}

func New(root string, sink SheetSink) *Writer {
	return &Writer{
		root:     root,
		sink:     sink,
		perTable: map[string]*sync.Mutex{},
	}
}

func (w *Writer) tableLock(table string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.perTable[table]
	if !ok {
		m = &sync.Mutex{}
		w.perTable[table] = m
	}
	return m
}

func (w *Writer) dateDir(t time.Time) string {
	return filepath.Join(w.root, t.Local().Format("2006-01-02"))
}

func (w *Writer) tablePath(table string, t time.Time) string {
	return filepath.Join(w.dateDir(t), table+".csv")
}

// AppendMessage writes one append-only MESSAGES row, truncating the message
// body to 500 characters and comma-joining crypto mentions.
func (w *Writer) AppendMessage(m domainmodel.ProcessedMessage) error {
	text := m.Event.Text
	if r := []rune(text); len(r) > 500 {
		text = string(r[:500])
	}
	row := []string{
		m.Event.MessageID,
		m.Event.Timestamp.Format(time.RFC3339),
		m.Event.ChannelName,
		text,
		formatFloat(m.EngagementScore),
		strings.Join(m.Mentions, ","),
		string(m.Sentiment),
		formatFloat(m.Confidence),
	}
	if err := w.appendRow("messages", m.Event.Timestamp, row); err != nil {
		return err
	}
	w.mirrorAppend("messages", row)
	return nil
}

// UpsertTokenPrice upserts a TOKEN_PRICES row keyed by address.
func (w *Writer) UpsertTokenPrice(addr domainmodel.Address, snap *domainmodel.PriceSnapshot) error {
	row := []string{
		addr.Literal,
		string(addr.Chain),
		snap.Symbol,
		formatFloat(snap.PriceUSD),
		formatFloatPtr(snap.MarketCap),
		formatFloatPtr(snap.Volume24h),
		formatFloatPtr(snap.PriceChange24h),
		formatFloatPtr(snap.LiquidityUSD),
		formatInt64Ptr(snap.PairCreatedAt),
	}
	if err := w.upsertRow("token_prices", addr.Literal, row); err != nil {
		return err
	}
	w.mirrorUpsert("token_prices", addr.Literal, row)
	return nil
}

// UpsertPerformance upserts a PERFORMANCE row keyed by address.
func (w *Writer) UpsertPerformance(o *domainmodel.SignalOutcome) error {
	daysTracked := time.Since(o.EntryTimestamp).Hours() / 24
	row := []string{
		o.Address,
		string(o.Chain),
		o.FirstMessageID,
		formatFloat(o.EntryPrice),
		o.EntryTimestamp.Format(time.RFC3339),
		formatFloat(o.ATHPrice),
		o.ATHTimestamp.Format(time.RFC3339),
		formatFloat(o.ATHMultiplier),
		formatFloat(o.CurrentMultiplier),
		formatFloat(daysTracked),
	}
	if err := w.upsertRow("performance", o.Address, row); err != nil {
		return err
	}
	w.mirrorUpsert("performance", o.Address, row)
	return nil
}

// UpsertHistorical upserts a HISTORICAL row keyed by address.
func (w *Writer) UpsertHistorical(address string, chain domainmodel.Chain, allTimeATH float64, athDate time.Time, currentPrice, allTimeATL float64, atlDate time.Time) error {
	distFromATH := 0.0
	if allTimeATH > 0 {
		distFromATH = (allTimeATH - currentPrice) / allTimeATH
	}
	distFromATL := 0.0
	if allTimeATL > 0 {
		distFromATL = (currentPrice - allTimeATL) / allTimeATL
	}
	row := []string{
		address,
		string(chain),
		formatFloat(allTimeATH),
		athDate.Format(time.RFC3339),
		formatFloat(distFromATH),
		formatFloat(allTimeATL),
		atlDate.Format(time.RFC3339),
		formatFloat(distFromATL),
	}
	if err := w.upsertRow("historical", address, row); err != nil {
		return err
	}
	w.mirrorUpsert("historical", address, row)
	return nil
}

// appendRow locates the append point, writes the row, and fsyncs when the
// write lands on a fresh (just-rotated) file, per §4.12's rotation rule.
func (w *Writer) appendRow(table string, t time.Time, row []string) error {
	lock := w.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	path := w.tablePath(table, t)
	isNew := !fileExists(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir table dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		if err := cw.Write(columnsFor(table)); err != nil {
			return err
		}
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if isNew {
		return f.Sync()
	}
	return nil
}

// upsertRow reads the table's current rows, replaces the row whose first
// column matches primaryKey (or appends if none match), and rewrites the
// file atomically. Concurrent upserts to the same table are serialized by
// the table's lock.
func (w *Writer) upsertRow(table, primaryKey string, row []string) error {
	lock := w.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	path := w.tablePath(table, now)

	rows, err := readAllRows(path)
	if err != nil {
		return err
	}

	replaced := false
	for i, r := range rows {
		if i == 0 {
			continue // header
		}
		if len(r) > 0 && r[0] == primaryKey {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		if len(rows) == 0 {
			rows = append(rows, columnsFor(table))
		}
		rows = append(rows, row)
	}

	return writeAllRowsAtomic(path, rows)
}

func (w *Writer) mirrorUpsert(table, key string, row []string) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Upsert(table, key, row); err != nil {
		log.Warn().Err(err).Str("table", table).Str("key", key).Msg("sheet mirror upsert failed, primary write unaffected")
	}
}

func (w *Writer) mirrorAppend(table string, row []string) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Append(table, row); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("sheet mirror append failed, primary write unaffected")
	}
}

func columnsFor(table string) []string {
	switch table {
	case "messages":
		return MessagesColumns
	case "token_prices":
		return TokenPricesColumns
	case "performance":
		return PerformanceColumns
	case "historical":
		return HistoricalColumns
	default:
		return nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readAllRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}

func writeAllRowsAtomic(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
