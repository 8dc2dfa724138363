package store

import "time"

// Fact rows are immutable, append-mostly records tied to a location (and,
// where the dataset provides PINs, a parcel). Every row carries the source
// dataset name and the batch that loaded it. Pointer fields are nullable
// source columns.

// ViolationFact is one building-violation record.
type ViolationFact struct {
	LocationSK         int64
	SourceID           string
	ViolationDate      *time.Time
	LastModifiedDate   *time.Time
	ViolationCode      string
	ViolationStatus    string
	StatusDate         *time.Time
	Description        string
	Ordinance          string
	InspectorComments  string
	InspectionNumber   string
	InspectionStatus   string
	InspectionCategory string
	DepartmentBureau   string
	SourceDataset      string
	BatchID            int64
}

// InspectionFact is one food-inspection record.
type InspectionFact struct {
	LocationSK     int64
	SourceID       string
	DBAName        string
	FacilityType   string
	RiskLevel      string
	InspectionDate *time.Time
	InspectionType string
	Results        string
	ViolationsText string
	SourceDataset  string
	BatchID        int64
}

// PermitFact is one building-permit record. ParcelSK is 0 when the permit
// carried no usable PIN.
type PermitFact struct {
	LocationSK           int64
	ParcelSK             int64
	SourceID             string
	PermitNumber         string
	PermitStatus         string
	PermitType           string
	ApplicationStartDate *time.Time
	IssueDate            *time.Time
	ProcessingDays       *int
	TotalFee             *float64
	WorkDescription      string
	SourceDataset        string
	BatchID              int64
}

// Request311Fact is one 311 service request.
type Request311Fact struct {
	LocationSK    int64
	SourceID      string
	SRType        string
	SRShortCode   string
	Status        string
	CreatedDate   *time.Time
	ClosedDate    *time.Time
	SourceDataset string
	BatchID       int64
}

// TaxLienFact is one annual or scavenger tax-sale record. ParcelSK and
// LocationSK are 0 when the PIN has not been seen by any other dataset.
type TaxLienFact struct {
	ParcelSK        int64
	LocationSK      int64
	PIN             string
	TaxSaleYear     *int
	LienType        string
	FromYear        *int
	ToYear          *int
	SoldAtSale      *bool
	TaxAmount       *float64
	PenaltyAmount   *float64
	TotalAmount     *float64
	ForfeitedAmount *float64
	BuyerName       string
	SourceDataset   string
	BatchID         int64
}

// VacantBuildingFact is one vacant-building docket record.
type VacantBuildingFact struct {
	LocationSK       int64
	SourceID         string
	DocketNumber     string
	ViolationNumber  string
	IssuedDate       *time.Time
	LastHearingDate  *time.Time
	ViolationType    string
	EntityOrPerson   string
	Disposition      string
	TotalFines       *float64
	CurrentAmountDue *float64
	TotalPaid        *float64
	SourceDataset    string
	BatchID          int64
}
