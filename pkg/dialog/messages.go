package dialog

import (
	"fmt"
	"strings"
	"time"

	"weighbot/models"
)

const msgMenu = "Выберите действие:\n" +
	"1 - Новый отчет о взвешивании\n" +
	"2 - Изменить номер машины\n" +
	"3 - Переоформить регистрацию\n" +
	"4 - Мои последние отчеты\n" +
	"5 - Статистика машины\n" +
	"0 - Главное меню"

const msgRegistrationStart = "Регистрация водителя\n\n" +
	"Добро пожаловать! Для начала работы нужно зарегистрироваться.\n\n" +
	"Введите ваше ФИО (полное имя):"

// appended to the pipeline status when no weight was found
const msgRetryOptions = "\n\n💡 *Варианты решения:*\n\n" +
	"1️⃣ *Отправьте НОВОЕ фото* - лучше сфокусировано на табло весов\n" +
	"2️⃣ *Введите вес вручную* - просто напишите число (например: 15000)\n\n" +
	"⚠️ Важно: фото должно показывать четкие цифры на табло весов"

const (
	msgNotRegistered   = "Вы не зарегистрированы в системе.\n\nОтправьте \"да\" для регистрации"
	msgNameTooShort    = "Пожалуйста, введите полное имя (минимум 3 символа)"
	msgBadPhone        = "Неверный номер телефона. Введите еще раз (например: 89123456789)"
	msgEnterTruck      = "Введите номер вашей машины:"
	msgBadTruck        = "Введите правильный номер машины"
	msgEnterNewTruck   = "Введите новый номер машины:"
	msgNoTruck         = "Номер машины не установлен. Выполните пункт меню 2 для установки номера машины."
	msgEnterClient     = "Введите имя клиента:"
	msgClientTooShort  = "Введите имя клиента"
	msgSendPhoto       = "Отправьте фото показаний весов:"
	msgPhotoExpected   = "Пожалуйста, отправьте фото. Просто загрузите изображение в чат."
	msgPhotoNotNeeded  = "❌ Сейчас фото не нужны. Отправьте текст."
	msgPhotoMissing    = "❌ Не удалось получить фото. Попробуйте еще раз."
	msgDownloadFailed  = "❌ Ошибка при скачивании фото. Попробуйте еще раз."
	msgNotANumber      = "❌ Не понимаю. Напишите число, например: 15000\n\nИли отправьте новое фото весов"
	msgConfirmHint     = "Пожалуйста, напишите 'да' для сохранения или 'нет' для отмены"
	msgReportCancelled = "Отчет отменен.\n\nОтправьте 1 для заполнения нового груза или 0 для главного меню"
	msgReportSaved     = "Отчет сохранен и отправлен!\n\nОтправьте \"1\" для заполнения нового груза\n0 - Главное меню"
	msgSaveFailed      = "Ошибка при сохранении отчета. Попробуйте еще раз."
	msgEnterStatsTruck = "Введите номер машины для просмотра статистики:\nПример: А123БВ777"
	msgNoHistory       = "📭 У вас пока нет отчетов."
	msgUnknownCommand  = "Не понимаю команду. Отправьте 0 для меню"
	msgInternalError   = "❌ Внутренняя ошибка. Попробуйте еще раз или отправьте 0 для меню"
)

const (
	dateTimeLayout  = "02.01.2006 15:04"
	shortDateLayout = "02.01 15:04"
)

func namePrompt(name string) string {
	return fmt.Sprintf("ФИО: %s\n\nТеперь введите ваш личный номер телефона:\nПример: 89123456789", name)
}

func registrationDone(d *models.Driver) string {
	return fmt.Sprintf("Регистрация завершена!\n\nДанные:\nФИО: %s\nТелефон: +%s\nМашина: %s\n\nОтправьте \"1\" для заполнения нового груза",
		d.FullName, d.PersonalPhone, d.TruckNumber)
}

func truckChanged(truck string) string {
	return fmt.Sprintf("Номер машины изменен на %s\n\nОтправьте 0 для главного меню", truck)
}

func weightOutOfRange(tooSmall bool, min, max int) string {
	word := "велик"
	if tooSmall {
		word = "мал"
	}
	return fmt.Sprintf("⚠️ Вес слишком %s (нужно %d-%d кг)\n\nПопробуйте еще раз или отправьте новое фото", word, min, max)
}

func confirmation(d draft, at time.Time) string {
	line := fmt.Sprintf("Вес новый: %.0f кг", d.CurrentWeight)
	if d.Manual {
		line = fmt.Sprintf("*Вес ВРУЧНУЮ введен:* %.0f кг", d.CurrentWeight)
	}
	return fmt.Sprintf("✅ Подтверждение отчета\n\n"+
		"Дата: %s\nТелефон: %s\nМашина: %s\nКлиент: %s\n\n"+
		"%s\nВес предыдущий: %.0f кг\nРазница: %+.0f кг\n\n"+
		"Напишите \"да\" для сохранения\nНапишите \"нет\" для отмены",
		at.Format(dateTimeLayout), orUnknown(d.DriverPhone), d.TruckNumber, orUnknown(d.ClientName),
		line, d.PreviousWeight, d.CurrentWeight-d.PreviousWeight)
}

// groupReport is the text posted to the dispatcher group, also used as the photo caption.
func groupReport(w *models.Weighing, phone string, at time.Time) string {
	return fmt.Sprintf("*%s*  *%s*\n\n"+
		"Дата: %s\nМашина: %s\nКлиент: %s\n\n"+
		"Вес новый: %.0f кг\nВес предыдущий: %.0f кг\nРазница: %+.0f кг",
		strings.ToUpper(orUnknown(w.DriverName)), orUnknown(phone),
		at.Format(dateTimeLayout), w.TruckNumber, orUnknown(w.ClientName),
		w.CurrentWeight, w.PreviousWeight, w.WeightDifference)
}

func historyText(items []models.Weighing, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📋 *ВАШИ ПОСЛЕДНИЕ ОТЧЕТЫ*\n")
	for i, w := range items {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, w.CreatedAt.In(loc).Format(shortDateLayout))
		fmt.Fprintf(&b, "   %s\n", w.TruckNumber)
		fmt.Fprintf(&b, "   Клиент: %s\n", orUnknown(w.ClientName))
		fmt.Fprintf(&b, "   Вес: %.0f кг\n", w.CurrentWeight)
		fmt.Fprintf(&b, "   Разница: %.0f кг\n", w.WeightDifference)
	}
	return b.String()
}

func statsText(v *models.Vehicle, items []models.Weighing, loc *time.Location) string {
	last := "нет данных"
	if v.LastWeighingAt != nil {
		last = v.LastWeighingAt.In(loc).Format(dateTimeLayout)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*СТАТИСТИКА МАШИНЫ*\n*%s*\n\n", v.TruckNumber)
	fmt.Fprintf(&b, "Последний вес: %.0f кг\n", v.LastWeight)
	fmt.Fprintf(&b, "Последняя заправка: %s\n", orUnknown(v.LastStation))
	fmt.Fprintf(&b, "Последнее взвешивание: %s\n\n", last)
	b.WriteString("*ПОСЛЕДНИЕ ОТЧЕТЫ:*\n")
	if len(items) == 0 {
		b.WriteString("\nНет отчетов\n")
	}
	for i, w := range items {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, w.CreatedAt.In(loc).Format(shortDateLayout))
		fmt.Fprintf(&b, "   Водитель: %s\n", orUnknown(w.DriverName))
		fmt.Fprintf(&b, "   Клиент: %s\n", orUnknown(w.ClientName))
		fmt.Fprintf(&b, "   Вес: %.0f кг\n", w.CurrentWeight)
		fmt.Fprintf(&b, "   Разница: %.0f кг\n", w.WeightDifference)
	}
	b.WriteString("\n0 - Главное меню")
	return b.String()
}

func vehicleNotFound(truck string) string {
	return fmt.Sprintf("❌ Машина %s не найдена", truck)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}
