package repository

import "github.com/vicosurge/revista-lavanda/internal/domain"

// Record column names as they exist in the submissions table.
const (
	ColumnName     = "Nombre"
	ColumnEmail    = "Email"
	ColumnCategory = "Tipo de Trabajo"
	ColumnTitle    = "Título"
	ColumnBio      = "Biografía"
	ColumnNotes    = "Notas"
	ColumnFileName = "File Name"
	ColumnFileURL  = "Dropbox URL"
)

// Columns maps a submission onto the fixed record schema. Missing fields
// become empty strings and unknown fields are dropped.
func Columns(in RecordInput) map[string]string {
	return map[string]string{
		ColumnName:     in.Fields.Get(domain.FieldName),
		ColumnEmail:    in.Fields.Get(domain.FieldEmail),
		ColumnCategory: in.Fields.Get(domain.FieldCategory),
		ColumnTitle:    in.Fields.Get(domain.FieldTitle),
		ColumnBio:      in.Fields.Get(domain.FieldBio),
		ColumnNotes:    in.Fields.Get(domain.FieldNotes),
		ColumnFileName: in.FileName,
		ColumnFileURL:  in.FileURL,
	}
}
