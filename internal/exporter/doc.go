// Package exporter writes the materialized store out as files.
//
// ParquetExporter copies the DuckDB tables into compressed Parquet:
//
//	processed/nav_combined/raw_nav_table.parquet
//	processed/scheme_metadata/scheme_masterdata.parquet
//	processed/daily/nav_YYYYMMDD.parquet   (optional, one per written date)
//
// CSVWriter is the shared CSV writer with optional UTF-8 BOM for Excel. The
// RunReporter builds on it to record every requested date of a run in
// reports/materialization_YYYYMMDD_HHMMSS.csv.
//
// Example usage:
//
//	exp, err := exporter.NewParquetExporter(store.DB(), paths, exporter.WithCompression("zstd"))
//	files, err := exp.ExportAll(ctx)
//
//	path, err := exporter.NewRunReporter(exporter.NewCSVWriter(paths)).Write(result)
package exporter
