package score

import (
	"Guides-Server/config"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock 初始化失败: %v", err)
	}
	old := config.DB
	config.DB = db
	return mock, func() {
		config.DB = old
		db.Close()
	}
}

func TestResolveProjectByImageIDsMixedProjects(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT(*), COUNT(DISTINCT project_id), MIN(project_id) FROM project_images WHERE id IN (?,?)").
		WithArgs(int64(101), int64(201)).
		WillReturnRows(sqlmock.NewRows([]string{"found", "projects", "project_id"}).AddRow(2, 2, 7))

	if _, err := NewRepository().ResolveProjectByImageIDs([]int64{101, 201}); err != ErrMixedProjectImages {
		t.Errorf("期望 ErrMixedProjectImages, got %v", err)
	}
}

func TestResolveProjectByImageIDsMissingImage(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT(*), COUNT(DISTINCT project_id), MIN(project_id) FROM project_images WHERE id IN (?,?)").
		WithArgs(int64(101), int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"found", "projects", "project_id"}).AddRow(1, 1, 7))

	if _, err := NewRepository().ResolveProjectByImageIDs([]int64{101, 999}); err != ErrProjectNotFound {
		t.Errorf("期望 ErrProjectNotFound, got %v", err)
	}
}

func TestBatchDeleteSkipsAlreadyDeleted(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	// 3条里1条已在回收站，统计与更新都只落在未删除的2条上
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_id, COUNT(*) FROM score_submissions WHERE id IN (?,?,?) AND is_delete = ? GROUP BY project_id").
		WithArgs(int64(1), int64(2), int64(3), 0).
		WillReturnRows(sqlmock.NewRows([]string{"project_id", "count"}).AddRow(7, 2))
	mock.ExpectExec("UPDATE score_submissions SET is_delete = 1, deleted_at = CURRENT_TIMESTAMP WHERE id IN (?,?,?) AND is_delete = ?").
		WithArgs(int64(1), int64(2), int64(3), 0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE project_stats SET submit_count = GREATEST(0, submit_count - ?) WHERE project_id = ?").
		WithArgs(2, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	count, err := NewRepository().BatchDeleteSubmissions([]int64{1, 2, 3})
	if err != nil {
		t.Fatalf("批量删除失败: %v", err)
	}
	if count != 2 {
		t.Errorf("影响行数 = %d, want 2", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("SQL 期望未满足: %v", err)
	}
}

func TestBatchRestoreSkipsAlreadyRestored(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	// 全部已是正常状态：不产生任何统计修正
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_id, COUNT(*) FROM score_submissions WHERE id IN (?,?) AND is_delete = ? GROUP BY project_id").
		WithArgs(int64(5), int64(6), 1).
		WillReturnRows(sqlmock.NewRows([]string{"project_id", "count"}))
	mock.ExpectExec("UPDATE score_submissions SET is_delete = 0, deleted_at = NULL WHERE id IN (?,?) AND is_delete = ?").
		WithArgs(int64(5), int64(6), 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	count, err := NewRepository().BatchRestoreSubmissions([]int64{5, 6})
	if err != nil {
		t.Fatalf("批量恢复失败: %v", err)
	}
	if count != 0 {
		t.Errorf("影响行数 = %d, want 0", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("SQL 期望未满足: %v", err)
	}
}
