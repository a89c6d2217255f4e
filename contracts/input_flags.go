package contracts

type InputFlags struct {
	Input        string
	Output       string
	OutputFormat string
	Quality      int
	Compress     bool
	Workers      int
	// Report prints the success report of every conversion, not only
	// failure reports.
	Report bool

	Store     string
	Bucket    string
	SourceKey string
	DestKey   string

	MetricsAddr string
}
