// Package storage provides SQLite-based persistence for projects, their
// mentors and the records attached to them.
//
// The storage layer manages:
//   - Users and projects
//   - Project embeddings, stored as "[0.1,0.2,...]" text in a nullable column
//   - Applications, questions with answers, and feedback
//
// # Database Schema
//
// Tables:
//   - users: accounts with a platform role
//   - projects: all project fields plus revision and embedding
//   - applications, questions, answers, feedback: related records
//   - schema_version: applied migrations, compared with semver
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.projsearch/projsearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	ids, err := db.SearchLexical(ctx, storage.LexicalQuery{
//	    Viewer: types.Viewer{UserID: 7, Role: types.RoleStudent},
//	    Text:   "graph",
//	})
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpdateEmbedding(ctx, id, vec, revision); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// The connection pool is limited to one connection. Code holding a Tx must
// issue every query through that Tx, never through the parent storage.
//
// # Embedding Writes
//
// UpdateProject bumps the project revision and never touches the embedding.
// UpdateEmbedding writes only the embedding, and only when the revision still
// matches, returning ErrStaleRevision otherwise.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Build with
// -tags sqlite_cgo to use github.com/mattn/go-sqlite3 instead.
package storage
