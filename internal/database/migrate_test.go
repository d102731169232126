package database

import "testing"

func TestMigrationOrder(t *testing.T) {
	names, err := migrationOrder()
	if err != nil {
		t.Fatalf("migrationOrder: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no embedded migrations found")
	}
	if names[0] != "001_init.sql" {
		t.Errorf("first migration = %q, want 001_init.sql", names[0])
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("migrations out of order: %q before %q", names[i-1], names[i])
		}
	}
}
