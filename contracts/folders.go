package contracts

type TIFFfolder struct {
	TiffFilesPaths []string
	Name           string
	Path           string
	TiffFilesSize  int64
}
