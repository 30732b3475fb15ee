package database

import "fmt"

func (d *Database) RunMigrations() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id INTEGER PRIMARY KEY,
			reference TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			urbanization TEXT NOT NULL DEFAULT '',
			suburb TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			province TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			urbanization_key TEXT NOT NULL DEFAULT '',
			suburb_key TEXT NOT NULL DEFAULT '',
			city_key TEXT NOT NULL DEFAULT '',
			property_type TEXT NOT NULL DEFAULT 'other',
			bedrooms INTEGER NOT NULL DEFAULT 0,
			bathrooms REAL NOT NULL DEFAULT 0,
			build_area REAL NOT NULL DEFAULT 0,
			plot_area REAL NOT NULL DEFAULT 0,
			terrace_area REAL NOT NULL DEFAULT 0,
			price REAL NOT NULL DEFAULT 0,
			for_sale BOOLEAN NOT NULL DEFAULT 0,
			long_term_rental BOOLEAN NOT NULL DEFAULT 0,
			short_term_rental BOOLEAN NOT NULL DEFAULT 0,
			features TEXT NOT NULL DEFAULT '[]',
			images TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			last_updated TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create properties table: %w", err)
	}

	_, err = d.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_reference
		ON properties(reference);
	`)
	if err != nil {
		return err
	}

	// Covers the coordinate probe and the index rebuild scan
	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_coordinates
		ON properties(latitude, longitude);
	`)
	if err != nil {
		return err
	}

	// Covers the attribute side of every candidate query
	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_search
		ON properties(is_active, property_type, price);
	`)
	if err != nil {
		return err
	}

	// Covers the hierarchy lookups
	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_location
		ON properties(urbanization_key, suburb_key, city_key);
	`)
	if err != nil {
		return err
	}

	return nil
}
