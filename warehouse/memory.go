package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
)

// memoryData is the full committed state of a Memory warehouse.
// It is also the layout of the local JSON snapshot.
type memoryData struct {
	Checkpoint   model.BatchCheckpoint               `json:"checkpoint"`
	Staging      map[string]model.StagedRecord       `json:"staging"`
	Transactions map[string]model.Transaction        `json:"transactions"`
	Products     map[string]model.Product            `json:"products"`
	Customers    map[string]model.Customer           `json:"customers"`
	Countries    map[string]model.Country            `json:"countries"`
	Members      map[model.MemberSet]map[string]bool `json:"members"`
	Log          []model.ExecutionLogEntry           `json:"log"`
	Quarantine   map[string]model.QuarantinedRow     `json:"quarantine"`
}

func newMemoryData(pipelineName string) *memoryData {
	return &memoryData{
		Checkpoint:   model.BatchCheckpoint{PipelineName: pipelineName},
		Staging:      make(map[string]model.StagedRecord),
		Transactions: make(map[string]model.Transaction),
		Products:     make(map[string]model.Product),
		Customers:    make(map[string]model.Customer),
		Countries:    make(map[string]model.Country),
		Members:      make(map[model.MemberSet]map[string]bool),
		Log:          make([]model.ExecutionLogEntry, 0),
		Quarantine:   make(map[string]model.QuarantinedRow),
	}
}

func stagingKey(k model.StagingKey) string {
	return k.FileName + ":" + strconv.FormatInt(k.RowIndex, 10)
}

func memberKey(m model.Member) string {
	return m.Key + "\x1f" + m.Member
}

type MemoryConfig struct {
	Log          logger.Logger `errorTxt:"logger" mandatory:"yes"`
	PipelineName string        `errorTxt:"pipeline name" mandatory:"yes"`
	// Path is the JSON snapshot file. When empty the warehouse lives in memory only.
	Path string
}

// Memory is a Warehouse held in process memory.
// With a Path it becomes the "local" warehouse: every commit rewrites the snapshot and the pipeline lock
// is an exclusive lock file next to it, so separate processes can share it one at a time.
type Memory struct {
	MemoryConfig
	mu   sync.RWMutex
	data *memoryData
	// lease used when there is no lock file.
	lockOwner     string
	lockExpiresAt time.Time
	// hooks let tests inject failures at named points.
	failAt map[string]error
}

// NewMemoryWarehouse returns a Memory warehouse, loading the snapshot at cfg.Path if it exists.
func NewMemoryWarehouse(cfg MemoryConfig) (*Memory, error) {
	m := &Memory{MemoryConfig: cfg, data: newMemoryData(cfg.PipelineName)}
	if cfg.Path != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FailAt makes the named operation return err. Names are the Tx method names plus "Commit".
// Pass a nil error to clear it.
func (m *Memory) FailAt(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt == nil {
		m.failAt = make(map[string]error)
	}
	if err == nil {
		delete(m.failAt, name)
		return
	}
	m.failAt[name] = err
}

func (m *Memory) injected(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failAt[name]
}

func (m *Memory) load() error {
	b, err := ioutil.ReadFile(m.Path)
	if os.IsNotExist(err) { // if this is a new warehouse...
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "error reading local warehouse %v", m.Path)
	}
	d := newMemoryData(m.PipelineName)
	if err = json.Unmarshal(b, d); err != nil {
		return errors.Wrapf(err, "error parsing local warehouse %v", m.Path)
	}
	if d.Checkpoint.PipelineName == "" {
		d.Checkpoint.PipelineName = m.PipelineName
	}
	m.data = d
	return nil
}

// save writes the snapshot atomically. The caller must hold the write lock.
func (m *Memory) save() error {
	if m.Path == "" {
		return nil
	}
	b, err := json.Marshal(m.data)
	if err != nil {
		return errors.Wrap(err, "error encoding local warehouse")
	}
	if err = os.MkdirAll(filepath.Dir(m.Path), 0700); err != nil {
		return errors.Wrap(err, "error creating local warehouse directory")
	}
	tmp := m.Path + ".tmp"
	if err = ioutil.WriteFile(tmp, b, 0600); err != nil {
		return errors.Wrapf(err, "error writing local warehouse %v", tmp)
	}
	return errors.Wrap(os.Rename(tmp, m.Path), "error replacing local warehouse snapshot")
}

func (m *Memory) lockFile() string {
	return m.Path + ".lock"
}

type lockFileContents struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AcquireLock takes the pipeline lease for owner. An expired lease held by someone else is taken over.
func (m *Memory) AcquireLock(ctx context.Context, owner string, ttl time.Duration) error {
	now := time.Now().UTC()
	if m.Path == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lockOwner != "" && m.lockOwner != owner && m.lockExpiresAt.After(now) {
			return errors.Wrapf(ErrLockHeld, "owner %v until %v", m.lockOwner, m.lockExpiresAt.Format(time.RFC3339))
		}
		m.lockOwner, m.lockExpiresAt = owner, now.Add(ttl)
		return nil
	}
	b, _ := json.Marshal(lockFileContents{Owner: owner, ExpiresAt: now.Add(ttl)})
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(m.lockFile(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			_, err = f.Write(b)
			_ = f.Close()
			if err != nil {
				return errors.Wrap(err, "error writing lock file")
			}
			// Another process may have committed since we loaded the snapshot.
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.load()
		}
		if !os.IsExist(err) {
			return errors.Wrap(err, "error creating lock file")
		}
		var held lockFileContents
		if existing, rerr := ioutil.ReadFile(m.lockFile()); rerr == nil {
			_ = json.Unmarshal(existing, &held)
		}
		if held.Owner != owner && held.ExpiresAt.After(now) { // if someone else holds a live lease...
			return errors.Wrapf(ErrLockHeld, "owner %v until %v", held.Owner, held.ExpiresAt.Format(time.RFC3339))
		}
		_ = os.Remove(m.lockFile()) // stale or ours; retry once.
	}
	return ErrLockHeld
}

// ReleaseLock drops the lease if owner still holds it.
func (m *Memory) ReleaseLock(ctx context.Context, owner string) error {
	if m.Path == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lockOwner == owner {
			m.lockOwner, m.lockExpiresAt = "", time.Time{}
		}
		return nil
	}
	var held lockFileContents
	b, err := ioutil.ReadFile(m.lockFile())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "error reading lock file")
	}
	_ = json.Unmarshal(b, &held)
	if held.Owner != owner {
		return nil
	}
	return errors.Wrap(os.Remove(m.lockFile()), "error removing lock file")
}

func (m *Memory) AppendLog(ctx context.Context, e model.ExecutionLogEntry) error {
	if err := m.injected("AppendLog." + string(e.Status)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Log = append(m.data.Log, e)
	return m.save()
}

// Quarantine stores rows not already quarantined and returns how many were new.
func (m *Memory) Quarantine(ctx context.Context, rows []model.QuarantinedRow) (int, error) {
	if err := m.injected("Quarantine"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range rows {
		k := stagingKey(r.Key())
		if _, ok := m.data.Quarantine[k]; ok {
			continue
		}
		m.data.Quarantine[k] = r
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, m.save()
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{
		m:            m,
		staging:      make(map[string]model.StagedRecord),
		transactions: make(map[string]model.Transaction),
		products:     make(map[string]model.Product),
		customers:    make(map[string]model.Customer),
		countries:    make(map[string]model.Country),
		members:      make(map[model.MemberSet]map[string]bool),
	}, nil
}

// memoryTx buffers writes until Commit. Reads see the buffer first and then committed data.
type memoryTx struct {
	m               *Memory
	done            bool
	staging         map[string]model.StagedRecord
	transactions    map[string]model.Transaction
	products        map[string]model.Product
	customers       map[string]model.Customer
	countries       map[string]model.Country
	members         map[model.MemberSet]map[string]bool
	log             []model.ExecutionLogEntry
	checkpoint      *model.BatchCheckpoint
	expectedVersion int64
}

func (t *memoryTx) check(ctx context.Context, name string) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.m.injected(name)
}

func (t *memoryTx) Stage(ctx context.Context, recs []model.StagedRecord) (int, error) {
	if err := t.check(ctx, "Stage"); err != nil {
		return 0, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	n := 0
	for _, r := range recs {
		k := stagingKey(r.Key())
		if _, ok := t.m.data.Staging[k]; ok {
			continue
		}
		if _, ok := t.staging[k]; ok {
			continue
		}
		t.staging[k] = r
		n++
	}
	return n, nil
}

func (t *memoryTx) InsertTransactions(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	if err := t.check(ctx, "InsertTransactions"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	inserted := make([]model.Transaction, 0, len(txns))
	for _, x := range txns {
		if _, ok := t.m.data.Transactions[x.TransactionID]; ok {
			continue
		}
		if _, ok := t.transactions[x.TransactionID]; ok {
			continue
		}
		t.transactions[x.TransactionID] = x
		inserted = append(inserted, x)
	}
	return inserted, nil
}

func (t *memoryTx) Products(ctx context.Context, stockCodes []string) (map[string]model.Product, error) {
	if err := t.check(ctx, "Products"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	retval := make(map[string]model.Product)
	for _, k := range stockCodes {
		if p, ok := t.products[k]; ok {
			retval[k] = p
		} else if p, ok := t.m.data.Products[k]; ok {
			retval[k] = p
		}
	}
	return retval, nil
}

func (t *memoryTx) Customers(ctx context.Context, customerIDs []string) (map[string]model.Customer, error) {
	if err := t.check(ctx, "Customers"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	retval := make(map[string]model.Customer)
	for _, k := range customerIDs {
		if c, ok := t.customers[k]; ok {
			retval[k] = c
		} else if c, ok := t.m.data.Customers[k]; ok {
			retval[k] = c
		}
	}
	return retval, nil
}

func (t *memoryTx) Countries(ctx context.Context, countries []string) (map[string]model.Country, error) {
	if err := t.check(ctx, "Countries"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	retval := make(map[string]model.Country)
	for _, k := range countries {
		if c, ok := t.countries[k]; ok {
			retval[k] = c
		} else if c, ok := t.m.data.Countries[k]; ok {
			retval[k] = c
		}
	}
	return retval, nil
}

func (t *memoryTx) PutProducts(ctx context.Context, p []model.Product) error {
	if err := t.check(ctx, "PutProducts"); err != nil {
		return err
	}
	for _, x := range p {
		t.products[x.StockCode] = x
	}
	return nil
}

func (t *memoryTx) PutCustomers(ctx context.Context, c []model.Customer) error {
	if err := t.check(ctx, "PutCustomers"); err != nil {
		return err
	}
	for _, x := range c {
		t.customers[x.CustomerID] = x
	}
	return nil
}

func (t *memoryTx) PutCountries(ctx context.Context, c []model.Country) error {
	if err := t.check(ctx, "PutCountries"); err != nil {
		return err
	}
	for _, x := range c {
		t.countries[x.Country] = x
	}
	return nil
}

func (t *memoryTx) AddMembers(ctx context.Context, set model.MemberSet, members []model.Member) ([]model.Member, error) {
	if err := t.check(ctx, "AddMembers"); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if t.members[set] == nil {
		t.members[set] = make(map[string]bool)
	}
	added := make([]model.Member, 0)
	for _, x := range members {
		k := memberKey(x)
		if t.m.data.Members[set][k] || t.members[set][k] {
			continue
		}
		t.members[set][k] = true
		added = append(added, x)
	}
	return added, nil
}

func (t *memoryTx) AppendLog(ctx context.Context, e model.ExecutionLogEntry) error {
	if err := t.check(ctx, "AppendLog."+string(e.Status)); err != nil {
		return err
	}
	t.log = append(t.log, e)
	return nil
}

func (t *memoryTx) CommitCheckpoint(ctx context.Context, expectedVersion int64, cp model.BatchCheckpoint) error {
	if err := t.check(ctx, "CommitCheckpoint"); err != nil {
		return err
	}
	t.m.mu.RLock()
	current := t.m.data.Checkpoint.Version
	t.m.mu.RUnlock()
	if current != expectedVersion {
		return errors.Wrapf(ErrCheckpointConflict, "expected version %v; found %v", expectedVersion, current)
	}
	t.checkpoint = &cp
	t.expectedVersion = expectedVersion
	return nil
}

// Commit applies every buffered write under one write lock so readers see all of it or none of it.
func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	if err := t.m.injected("Commit"); err != nil {
		return err
	}
	t.done = true
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.checkpoint != nil && m.data.Checkpoint.Version != t.expectedVersion { // if someone got in first...
		return errors.Wrapf(ErrCheckpointConflict, "expected version %v; found %v", t.expectedVersion, m.data.Checkpoint.Version)
	}
	for k, v := range t.staging {
		m.data.Staging[k] = v
	}
	for k, v := range t.transactions {
		m.data.Transactions[k] = v
	}
	for k, v := range t.products {
		m.data.Products[k] = v
	}
	for k, v := range t.customers {
		m.data.Customers[k] = v
	}
	for k, v := range t.countries {
		m.data.Countries[k] = v
	}
	for set, keys := range t.members {
		if m.data.Members[set] == nil {
			m.data.Members[set] = make(map[string]bool)
		}
		for k := range keys {
			m.data.Members[set][k] = true
		}
	}
	m.data.Log = append(m.data.Log, t.log...)
	if t.checkpoint != nil {
		m.data.Checkpoint = *t.checkpoint
	}
	if err := m.save(); err != nil {
		_ = m.load() // put back the last saved state.
		return fmt.Errorf("error saving local warehouse snapshot: %w", err)
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}
