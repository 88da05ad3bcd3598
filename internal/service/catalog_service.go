package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ndewijer/market-data-store/internal/apperrors"
	"github.com/ndewijer/market-data-store/internal/model"
	"github.com/ndewijer/market-data-store/internal/repository"
	"github.com/ndewijer/market-data-store/internal/validation"
)

// CatalogService handles the instrument catalog and read access to stored bars.
type CatalogService struct {
	db         *sql.DB
	assetRepo  *repository.AssetRepository
	priceRepo  *repository.PriceRepository
	memberRepo *repository.MembershipRepository
	now        func() time.Time
}

// NewCatalogService creates a new CatalogService with the provided repository dependencies.
func NewCatalogService(
	db *sql.DB,
	assetRepo *repository.AssetRepository,
	priceRepo *repository.PriceRepository,
	memberRepo *repository.MembershipRepository,
) *CatalogService {
	return &CatalogService{
		db:         db,
		assetRepo:  assetRepo,
		priceRepo:  priceRepo,
		memberRepo: memberRepo,
		now:        time.Now,
	}
}

// GetActiveAssets returns the instruments an update run considers, ordered by symbol.
func (s *CatalogService) GetActiveAssets(ctx context.Context) ([]model.Asset, error) {
	return s.assetRepo.GetAssets(ctx, true)
}

// GetAssets returns every catalog row, active or not.
func (s *CatalogService) GetAssets(ctx context.Context) ([]model.Asset, error) {
	return readRetry(ctx, func(ctx context.Context) ([]model.Asset, error) {
		return s.assetRepo.GetAssets(ctx, false)
	})
}

// GetAsset returns one catalog row or apperrors.ErrAssetNotFound.
func (s *CatalogService) GetAsset(ctx context.Context, symbol string) (model.Asset, error) {
	return readRetry(ctx, func(ctx context.Context) (model.Asset, error) {
		return s.assetRepo.GetAsset(ctx, symbol)
	})
}

// GetPrices returns the stored bars of a known asset between from and to inclusive.
// Zero bounds are open.
func (s *CatalogService) GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error) {
	if err := validation.ValidateDateRange(from, to); err != nil {
		return nil, err
	}
	if _, err := s.GetAsset(ctx, symbol); err != nil {
		return nil, err
	}
	return readRetry(ctx, func(ctx context.Context) ([]model.PriceBar, error) {
		return s.priceRepo.GetBars(ctx, symbol, from, to)
	})
}

// catalogFile is the layout of an asset seed file.
type catalogFile struct {
	Assets []catalogEntry `yaml:"assets"`
}

type catalogEntry struct {
	Symbol          string   `yaml:"symbol"`
	Name            string   `yaml:"name"`
	AssetType       string   `yaml:"asset_type"`
	Exchange        string   `yaml:"exchange"`
	Sector          string   `yaml:"sector"`
	Industry        string   `yaml:"industry"`
	Currency        string   `yaml:"currency"`
	UpdateFrequency string   `yaml:"update_frequency"`
	Timeframe       string   `yaml:"timeframe"`
	AssetGroup      string   `yaml:"asset_group"`
	Notes           string   `yaml:"notes"`
	Active          *bool    `yaml:"active"`
	Indices         []string `yaml:"indices"`
}

func (e catalogEntry) toAsset() model.Asset {
	a := model.Asset{
		Symbol:          validation.NormalizeSymbol(e.Symbol),
		Name:            e.Name,
		AssetType:       e.AssetType,
		Exchange:        e.Exchange,
		Sector:          e.Sector,
		Industry:        e.Industry,
		Currency:        e.Currency,
		UpdateFrequency: model.UpdateFrequency(e.UpdateFrequency),
		Timeframe:       e.Timeframe,
		AssetGroup:      e.AssetGroup,
		Notes:           e.Notes,
		IsActive:        true,
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if a.UpdateFrequency == "" {
		a.UpdateFrequency = model.FrequencyDaily
	}
	if a.Timeframe == "" {
		a.Timeframe = "1d"
	}
	if e.Active != nil {
		a.IsActive = *e.Active
	}
	return a
}

// ImportAssets reads a YAML seed file and creates or updates its catalog rows.
//
// The file holds a top-level "assets" list. Omitted fields default to currency USD,
// daily updates, timeframe 1d and active. An entry's optional "indices" list adds
// index memberships; memberships are never removed by an import. Every entry is validated before anything
// is written; the whole file is applied in one transaction. Existing rows keep
// their stored coverage and only have their descriptive columns replaced.
//
// Returns the imported assets in file order.
func (s *CatalogService) ImportAssets(ctx context.Context, r io.Reader) ([]model.Asset, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse asset file: %w", err)
	}

	assets := make([]model.Asset, 0, len(file.Assets))
	indices := make([][]string, 0, len(file.Assets))
	seen := make(map[string]bool, len(file.Assets))
	for i, entry := range file.Assets {
		a := entry.toAsset()
		if err := validation.ValidateAsset(a); err != nil {
			return nil, fmt.Errorf("asset #%d (%s): %w", i+1, entry.Symbol, err)
		}
		if seen[a.Symbol] {
			return nil, fmt.Errorf("asset #%d: duplicate symbol %s", i+1, a.Symbol)
		}
		names := make([]string, 0, len(entry.Indices))
		for _, raw := range entry.Indices {
			name := validation.NormalizeIndexName(raw)
			if err := validation.ValidateIndexName(name); err != nil {
				return nil, fmt.Errorf("asset #%d (%s): %w", i+1, entry.Symbol, err)
			}
			names = append(names, name)
		}
		seen[a.Symbol] = true
		assets = append(assets, a)
		indices = append(indices, names)
	}
	if len(assets) == 0 {
		return assets, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Storage("begin asset import", err)
	}
	defer func() { _ = tx.Rollback() }()

	assetRepo := s.assetRepo.WithTx(tx)
	memberRepo := s.memberRepo.WithTx(tx)
	now := s.now()
	for i, a := range assets {
		if err := assetRepo.UpsertAsset(ctx, a, now); err != nil {
			return nil, apperrors.Storage("import asset "+a.Symbol, err)
		}
		for _, name := range indices[i] {
			if err := memberRepo.Activate(ctx, a.Symbol, name, now); err != nil {
				return nil, apperrors.Storage("import membership "+a.Symbol, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Storage("commit asset import", err)
	}
	return assets, nil
}

// IndexConstituents is the current member list of one index.
type IndexConstituents struct {
	Index      string   `yaml:"index"`
	AssetGroup string   `yaml:"asset_group"`
	AssetType  string   `yaml:"asset_type"`
	Symbols    []string `yaml:"symbols"`
}

// SyncIndex makes the stored memberships of an index match c.Symbols.
//
// Symbols missing from the catalog are created with c.AssetType and c.AssetGroup
// (the group defaults to the index name). Listed assets are activated and get
// the group as primary asset_group when they have none. Members that left the
// index have their membership deactivated; the asset itself is deactivated only
// when it belongs to no other active index, so its stored bars stay but update
// runs skip it. Everything runs in one transaction.
func (s *CatalogService) SyncIndex(ctx context.Context, c IndexConstituents) (model.IndexSyncResult, error) {
	index := validation.NormalizeIndexName(c.Index)
	if err := validation.ValidateIndexName(index); err != nil {
		return model.IndexSyncResult{}, err
	}
	group := strings.TrimSpace(c.AssetGroup)
	if group == "" {
		group = index
	}
	assetType := strings.TrimSpace(c.AssetType)
	if assetType == "" {
		assetType = "stock"
	}
	if !validation.ValidAssetType[assetType] {
		return model.IndexSyncResult{}, &validation.Error{Fields: map[string]string{
			"asset_type": fmt.Sprintf("invalid asset type: %s", assetType),
		}}
	}

	symbols := make([]string, 0, len(c.Symbols))
	listed := make(map[string]bool, len(c.Symbols))
	for _, raw := range c.Symbols {
		symbol := validation.NormalizeSymbol(raw)
		if err := validation.ValidateSymbol(symbol); err != nil {
			return model.IndexSyncResult{}, err
		}
		if listed[symbol] {
			continue
		}
		listed[symbol] = true
		symbols = append(symbols, symbol)
	}
	if len(symbols) == 0 {
		return model.IndexSyncResult{}, fmt.Errorf("%w: %s", apperrors.ErrEmptyConstituents, index)
	}

	result := model.IndexSyncResult{
		IndexName:     index,
		AssetsCreated: []string{},
		Added:         []string{},
		Removed:       []string{},
		Deactivated:   []string{},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, apperrors.Storage("begin index sync", err)
	}
	defer func() { _ = tx.Rollback() }()

	assetRepo := s.assetRepo.WithTx(tx)
	memberRepo := s.memberRepo.WithTx(tx)
	now := s.now()

	existing, err := memberRepo.GetMembers(ctx, index, false)
	if err != nil {
		return result, apperrors.Storage("load members of "+index, err)
	}
	wasActive := make(map[string]bool, len(existing))
	for _, m := range existing {
		wasActive[m.Symbol] = m.IsActive
	}

	for _, symbol := range symbols {
		err := assetRepo.ActivateInGroup(ctx, symbol, group, now)
		if errors.Is(err, apperrors.ErrAssetNotFound) {
			a := catalogEntry{Symbol: symbol, AssetType: assetType, AssetGroup: group}.toAsset()
			err = assetRepo.UpsertAsset(ctx, a, now)
			result.AssetsCreated = append(result.AssetsCreated, symbol)
		}
		if err != nil {
			return result, apperrors.Storage("activate asset "+symbol, err)
		}
		if err := memberRepo.Activate(ctx, symbol, index, now); err != nil {
			return result, apperrors.Storage("activate membership "+symbol, err)
		}
		if wasActive[symbol] {
			result.Unchanged++
		} else {
			result.Added = append(result.Added, symbol)
		}
	}

	for _, m := range existing {
		if !m.IsActive || listed[m.Symbol] {
			continue
		}
		if err := memberRepo.Deactivate(ctx, m.Symbol, index, now); err != nil {
			return result, apperrors.Storage("deactivate membership "+m.Symbol, err)
		}
		result.Removed = append(result.Removed, m.Symbol)

		remaining, err := memberRepo.CountActive(ctx, m.Symbol)
		if err != nil {
			return result, apperrors.Storage("count memberships "+m.Symbol, err)
		}
		if remaining > 0 {
			continue
		}
		err = assetRepo.SetActive(ctx, m.Symbol, false, now)
		if errors.Is(err, apperrors.ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return result, apperrors.Storage("deactivate asset "+m.Symbol, err)
		}
		result.Deactivated = append(result.Deactivated, m.Symbol)
	}

	if err := tx.Commit(); err != nil {
		return result, apperrors.Storage("commit index sync", err)
	}
	return result, nil
}

// SyncIndexFile reads an IndexConstituents document from YAML and applies it with SyncIndex.
func (s *CatalogService) SyncIndexFile(ctx context.Context, r io.Reader) (model.IndexSyncResult, error) {
	var c IndexConstituents
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return model.IndexSyncResult{}, fmt.Errorf("failed to parse constituent file: %w", err)
	}
	return s.SyncIndex(ctx, c)
}

// GetIndexMembers returns the memberships of an index ordered by symbol. Former
// members are included when includeInactive is set. Returns apperrors.ErrIndexNotFound
// when the index has never had a member.
func (s *CatalogService) GetIndexMembers(ctx context.Context, index string, includeInactive bool) ([]model.IndexMembership, error) {
	index = validation.NormalizeIndexName(index)
	if err := validation.ValidateIndexName(index); err != nil {
		return nil, err
	}
	members, err := readRetry(ctx, func(ctx context.Context) ([]model.IndexMembership, error) {
		return s.memberRepo.GetMembers(ctx, index, false)
	})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, index)
	}
	if includeInactive {
		return members, nil
	}
	active := members[:0]
	for _, m := range members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// GetAssetIndices returns the active index memberships of one symbol.
func (s *CatalogService) GetAssetIndices(ctx context.Context, symbol string) ([]model.IndexMembership, error) {
	return readRetry(ctx, func(ctx context.Context) ([]model.IndexMembership, error) {
		return s.memberRepo.GetIndices(ctx, symbol)
	})
}
