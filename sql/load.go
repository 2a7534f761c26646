package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed datasets.sql
var datasetsSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed segments.sql
var segmentsSQL string

// Function lists for verification
var DatasetsFunctions = []string{
	"init_datasets",
	"insert_dataset",
	"select_dataset",
	"select_dataset_by_id",
	"select_all_datasets",
	"update_dataset_config",
	"increment_dataset_counters",
	"delete_dataset",
}

var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_document_by_id",
	"select_documents_by_dataset",
	"update_document_progress",
	"update_document_chunk_count",
	"delete_document",
}

var SegmentsFunctions = []string{
	"init_segments",
	"insert_segment",
	"select_segment",
	"select_segments_by_document",
	"select_pending_segments",
	"mark_segments_processing",
	"complete_segment",
	"fail_segments",
	"fail_unfinished_segments",
	"reset_failed_segments",
	"count_segment_statuses",
	"select_segments_by_similarity",
	"select_segments_by_full_text",
	"set_segment_enabled",
	"delete_segment",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadDatasetsSql loads dataset-related SQL functions
func LoadDatasetsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, DatasetsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing datasets functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(datasetsSQL)
	if err != nil {
		return fmt.Errorf("error executing datasets SQL: %w", err)
	}

	exist, err := checkFunctions(db, DatasetsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL datasets functions loaded successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, DocumentsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing documents functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(documentsSQL)
	if err != nil {
		return fmt.Errorf("error executing documents SQL: %w", err)
	}

	exist, err := checkFunctions(db, DocumentsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL documents functions loaded successfully")
	return nil
}

// LoadSegmentsSql loads segment-related SQL functions
func LoadSegmentsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, SegmentsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing segments functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(segmentsSQL)
	if err != nil {
		return fmt.Errorf("error executing segments SQL: %w", err)
	}

	exist, err := checkFunctions(db, SegmentsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL segments functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadDatasetsSql(db, force); err != nil {
		return err
	}

	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadSegmentsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
