package services

import "strings"

const (
	pdfExt    = ".pdf"
	xoppExt   = ".xopp"
	backupExt = "~"
)

// TargetPath derives the save target from a document path: .pdf suffixes
// are dropped and the result always ends in exactly one .xopp.
func TargetPath(path string) string {
	path = trimExt(path, pdfExt)
	path = trimExt(path, xoppExt)
	return path + xoppExt
}

// BackupPath is the sibling the previous save is moved to while saving.
func BackupPath(target string) string {
	return target + backupExt
}

func trimExt(path, ext string) string {
	for len(path) > len(ext) && strings.EqualFold(path[len(path)-len(ext):], ext) {
		path = path[:len(path)-len(ext)]
	}
	return path
}
