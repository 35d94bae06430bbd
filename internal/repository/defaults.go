package repository

import "github.com/atinyakov/estakaadi/internal/models"

var allPermissions = []any{"read", "write", "delete", "manage_users"}

// Defaults returns fresh copies of the records seeded into an empty
// database for kind. Users carry no credentials.
func Defaults(kind models.Kind) []models.Entity {
	switch kind {
	case models.Users:
		return []models.Entity{
			user("admin_001", "admin", "Администратор"),
			user("maksim_001", "maksim", "Максим"),
			user("boss_001", "boss", "Начальник"),
		}
	case models.Companies:
		return []models.Entity{
			company("a_le_coq", "A. Le coq", "beverages", "a-le-coq"),
			company("coca_cola", "Coca-Cola", "beverages", "coca-cola"),
			company("saku", "Saku", "beverages", "saku"),
			company("prike", "Prike", "beverages", "prike"),
			company("mobec", "Mobec", "beverages", "mobec"),
			company("kaupmees", "Kaupmees", "retail", "kaupmees"),
			company("smarten", "Smarten", "retail", "smarten"),
		}
	case models.Schedule:
		return []models.Entity{
			day("monday", "Понедельник", "A. Le coq", "Coca-Cola", "Saku"),
			day("tuesday", "Вторник", "Prike", "Mobec"),
			day("wednesday", "Среда", "Kaupmees", "Smarten"),
			day("thursday", "Четверг", "A. Le coq", "Coca-Cola"),
			day("friday", "Пятница", "Saku", "Prike"),
			day("saturday", "Суббота", "Mobec", "Kaupmees"),
			day("sunday", "Воскресенье", "Smarten"),
		}
	}
	return nil
}

func user(id, username, name string) models.Entity {
	return models.Entity{
		"id":          id,
		"username":    username,
		"role":        "admin",
		"name":        name,
		"permissions": append([]any(nil), allPermissions...),
	}
}

func company(id, name, category, slug string) models.Entity {
	return models.Entity{
		"id":               id,
		"name":             name,
		"displayName":      name,
		"category":         category,
		"active":           true,
		"instructionsPath": "img/instructions/brands/" + slug + "/",
		"photosPath":       "img/" + name + "/",
	}
}

func day(id, name string, companies ...string) models.Entity {
	list := make([]any, len(companies))
	for i, c := range companies {
		list[i] = c
	}
	return models.Entity{
		"id":        id,
		"day":       id,
		"dayName":   name,
		"companies": list,
	}
}
