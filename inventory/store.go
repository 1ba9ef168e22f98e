/*
store.go - Persistence interfaces for the coverage engine

PURPOSE:
  Defines the interface between the consistency rules and the database.
  Implementations: store/sqlite (production) and inventory/store (memory).

PARTIAL UPDATES:
  Reconciliation persists only the fields it changed. UpdateCoverageFields
  and UpdateAssetFields take an explicit field list (the *Field* constants)
  and must not touch any other column.

TRANSACTIONS:
  TxStore.WithTx runs fn against a Store bound to one transaction. If fn
  returns an error everything written through that Store is rolled back.
  Writers are serialised: a second writer either waits or gets
  ErrConcurrentModification, so peers read inside WithTx are the peers the
  write will be checked against.

LOOKUPS:
  Get* return a *NotFoundError (errors.Is ErrNotFound) for missing records.
  Find and Current lookups return (nil, nil) when nothing matches.
*/
package inventory

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

type AssetStore interface {
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)
	ListAssets(ctx context.Context) ([]Asset, error)
	SaveAsset(ctx context.Context, a Asset) error
	UpdateAssetFields(ctx context.Context, a Asset, fields ...string) error
	// DeleteAsset returns ErrAssetProtected while assignments or coverage rows reference it.
	DeleteAsset(ctx context.Context, id AssetID) error
}

type HardwareStore interface {
	GetHardwareType(ctx context.Context, ref TypeRef) (*HardwareType, error)
	ListHardwareTypes(ctx context.Context) ([]HardwareType, error)
	SaveHardwareType(ctx context.Context, t HardwareType) error
	FindLifecycle(ctx context.Context, ref TypeRef) (*HardwareLifecycle, error)
	SaveLifecycle(ctx context.Context, l HardwareLifecycle) error
	DeleteLifecycle(ctx context.Context, ref TypeRef) error
}

type ContractStore interface {
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	SaveContract(ctx context.Context, c Contract) error
	// DeleteContract cascades to the contract's assignments.
	DeleteContract(ctx context.Context, id ContractID) error

	GetSKU(ctx context.Context, id SKUID) (*ContractSKU, error)
	SaveSKU(ctx context.Context, s ContractSKU) error
}

type AssignmentStore interface {
	GetAssignment(ctx context.Context, id AssignmentID) (*ResolvedAssignment, error)
	AssignmentsForAsset(ctx context.Context, assetID AssetID) ([]ResolvedAssignment, error)
	AssignmentsForAssetSKU(ctx context.Context, assetID AssetID, skuID SKUID) ([]ResolvedAssignment, error)
	AssignmentsForContract(ctx context.Context, contractID ContractID) ([]ResolvedAssignment, error)
	AssignmentsForSKU(ctx context.Context, skuID SKUID) ([]ResolvedAssignment, error)
	SaveAssignment(ctx context.Context, a ContractAssignment) error
	DeleteAssignment(ctx context.Context, id AssignmentID) error
}

type ProgramStore interface {
	GetProgram(ctx context.Context, id ProgramID) (*VendorProgram, error)
	ListPrograms(ctx context.Context) ([]VendorProgram, error)
	FindProgram(ctx context.Context, manufacturer ManufacturerID, contractType ContractType) (*VendorProgram, error)
	SaveProgram(ctx context.Context, p VendorProgram) error
}

type CoverageStore interface {
	GetCoverage(ctx context.Context, id CoverageID) (*AssetProgramCoverage, error)
	// CoveragesForAsset returns rows for the asset, limited to statuses when given.
	CoveragesForAsset(ctx context.Context, assetID AssetID, statuses ...CoverageStatus) ([]AssetProgramCoverage, error)
	CurrentCoverage(ctx context.Context, assetID AssetID, programID ProgramID) (*AssetProgramCoverage, error)
	SaveCoverage(ctx context.Context, c AssetProgramCoverage) error
	UpdateCoverageFields(ctx context.Context, c AssetProgramCoverage, fields ...string) error
}

// Store is every persistence capability the engine uses.
type Store interface {
	AssetStore
	HardwareStore
	ContractStore
	AssignmentStore
	ProgramStore
	CoverageStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
